// Command lumendbg-repl is a thin evaluate-only client for manual
// smoke testing against the adapter's TCP listener: it launches a
// program, then drops into a raw-mode terminal REPL that sends every
// line as an `evaluate` request with context "repl" and prints
// whatever comes back, plus any `output`/`stopped` events as they
// arrive. It is not part of the DAP surface itself, so it speaks the
// wire's Content-Length framing directly rather than pulling in every
// typed request/response go-dap defines for the server side.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/term"
)

func main() {
	addr := flag.String("addr", "localhost:8889", "adapter address")
	program := flag.String("program", "", "Lumen program to launch")
	flag.Parse()

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "dial:", err)
		os.Exit(1)
	}
	defer conn.Close()

	c := newClient(conn)
	go c.readLoop()

	if _, err := c.request("initialize", map[string]string{"adapterID": "lumendbg-repl"}); err != nil {
		fmt.Fprintln(os.Stderr, "initialize:", err)
		os.Exit(1)
	}
	if _, err := c.request("launch", map[string]interface{}{"program": *program}); err != nil {
		fmt.Fprintln(os.Stderr, "launch:", err)
		os.Exit(1)
	}
	if _, err := c.request("configurationDone", nil); err != nil {
		fmt.Fprintln(os.Stderr, "configurationDone:", err)
		os.Exit(1)
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		fmt.Fprintln(os.Stderr, "raw mode:", err)
		os.Exit(1)
	}
	defer term.Restore(fd, oldState)

	t := term.NewTerminal(readWriter{os.Stdin, os.Stdout}, "lumen> ")
	c.out = t

	for {
		line, err := t.ReadLine()
		if err != nil {
			return
		}
		switch strings.TrimSpace(line) {
		case "":
			continue
		case "exit", "quit":
			return
		}

		body, err := c.request("evaluate", map[string]interface{}{
			"expression": line,
			"context":    "repl",
		})
		if err != nil {
			fmt.Fprintln(t, "error:", err)
			continue
		}
		var out struct {
			Result string `json:"result"`
		}
		_ = json.Unmarshal(body, &out)
		fmt.Fprintln(t, out.Result)
	}
}

type readWriter struct {
	r *os.File
	w *os.File
}

func (rw readWriter) Read(p []byte) (int, error)  { return rw.r.Read(p) }
func (rw readWriter) Write(p []byte) (int, error) { return rw.w.Write(p) }

// wireMessage is the generic request/response/event envelope this
// client needs: enough of the DAP schema to correlate a response to
// its request and to print an event's body, without the rest of
// go-dap's typed surface.
type wireMessage struct {
	Seq        int             `json:"seq"`
	Type       string          `json:"type"`
	Command    string          `json:"command,omitempty"`
	Event      string          `json:"event,omitempty"`
	RequestSeq int             `json:"request_seq,omitempty"`
	Success    bool            `json:"success,omitempty"`
	Message    string          `json:"message,omitempty"`
	Arguments  json.RawMessage `json:"arguments,omitempty"`
	Body       json.RawMessage `json:"body,omitempty"`
}

// client is a minimal DAP client: one writer, one reader goroutine
// correlating responses to requests by seq, printing every event
// through whatever terminal owns the screen once the REPL starts (nil
// until then, so pre-REPL events are dropped rather than racing stdout).
type client struct {
	rw  *bufio.ReadWriter
	seq atomic.Int64
	out *term.Terminal

	mu      sync.Mutex
	pending map[int]chan wireMessage
}

func newClient(conn net.Conn) *client {
	return &client{
		rw:      bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn)),
		pending: map[int]chan wireMessage{},
	}
}

func (c *client) request(command string, args interface{}) (json.RawMessage, error) {
	seq := int(c.seq.Add(1))
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	msg := wireMessage{Seq: seq, Type: "request", Command: command, Arguments: raw}

	ch := make(chan wireMessage, 1)
	c.mu.Lock()
	c.pending[seq] = ch
	c.mu.Unlock()

	if err := c.send(msg); err != nil {
		return nil, err
	}

	resp := <-ch
	if !resp.Success {
		return nil, fmt.Errorf("%s failed: %s", command, resp.Message)
	}
	return resp.Body, nil
}

func (c *client) send(msg wireMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := fmt.Fprintf(c.rw.Writer, "Content-Length: %d\r\n\r\n", len(body)); err != nil {
		return err
	}
	if _, err := c.rw.Writer.Write(body); err != nil {
		return err
	}
	return c.rw.Writer.Flush()
}

// readLoop reads Content-Length-framed messages off the connection
// until it closes, the same framing dap.ReadProtocolMessage parses on
// the server side, just decoded here into the generic wireMessage
// shape instead of go-dap's per-command structs.
func (c *client) readLoop() {
	for {
		body, err := readFramedMessage(c.rw.Reader)
		if err != nil {
			return
		}
		var msg wireMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "response":
			c.mu.Lock()
			ch, ok := c.pending[msg.RequestSeq]
			delete(c.pending, msg.RequestSeq)
			c.mu.Unlock()
			if ok {
				ch <- msg
			}
		case "event":
			c.printEvent(msg)
		}
	}
}

func (c *client) printEvent(msg wireMessage) {
	if c.out == nil {
		return
	}
	switch msg.Event {
	case "output":
		var b struct{ Output string }
		_ = json.Unmarshal(msg.Body, &b)
		fmt.Fprint(c.out, b.Output)
	case "stopped":
		var b struct{ Reason string }
		_ = json.Unmarshal(msg.Body, &b)
		fmt.Fprintf(c.out, "\r\n[stopped: %s]\r\n", b.Reason)
	case "terminated":
		fmt.Fprint(c.out, "\r\n[terminated]\r\n")
	}
}

func readFramedMessage(r *bufio.Reader) ([]byte, error) {
	length := 0
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if strings.HasPrefix(line, "Content-Length:") {
			n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "Content-Length:")))
			if err != nil {
				return nil, err
			}
			length = n
		}
	}
	body := make([]byte, length)
	if _, err := readFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
