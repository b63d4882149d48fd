package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/lumenlang/dap-adapter/utils/gosync"
)

const Version = "1.0.0"

func main() {
	showVersion := flag.Bool("version", false, "Show the version number")
	port := flag.String("port", "8889", "TCP port to listen on")
	lumenFile := flag.String("lumenFile", "", "Lumen program to run, used when a launch request omits 'program'")
	stopOnEntry := flag.Bool("stopOnEntry", false, "Pause before the first line regardless of launch config")
	logFile := flag.String("logFile", filepath.Join(os.TempDir(), "lumendbg.log"), "Path to the adapter's own log file")
	flag.Parse()

	if *showVersion {
		fmt.Printf("Version: %s\n", Version)
		return
	}

	SetupLogger(*logFile)
	defer CloseLogger()

	listener, err := net.Listen("tcp", ":"+*port)
	if err != nil {
		logrus.WithError(err).Fatalf("listening at %s", *port)
	}
	defer listener.Close()
	logrus.WithField("addr", listener.Addr().String()).Info("server: listening")

	for {
		conn, err := listener.Accept()
		if err != nil {
			logrus.WithError(err).Warn("server: accept failed")
			continue
		}
		// One DebugSession per connection, each with its own Lumen
		// interpreter; gosync.Go keeps one bad connection's panic from
		// taking down every other session.
		gosync.Go(context.Background(), func(context.Context) {
			handleConnection(conn, *lumenFile, *stopOnEntry)
		})
	}
}
