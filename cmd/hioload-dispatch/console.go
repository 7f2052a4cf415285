// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/luci/go-render/render"
	"github.com/urfave/cli/v2"
)

const consoleHelp = `commands:
  probes            dump every debug probe
  probe <name>      dump one probe
  metrics [prefix]  print metric samples, optionally filtered by name prefix
  help              this text
  exit              leave the console`

func consoleAction(ctx *cli.Context) error {
	c := &console{
		base:   "http://" + ctx.String(flagAddr.Name),
		client: &http.Client{Timeout: 5 * time.Second},
		out:    os.Stdout,
	}
	input, err := readline.NewEx(&readline.Config{
		Prompt: "dispatch> ",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("probes"),
			readline.PcItem("probe"),
			readline.PcItem("metrics"),
			readline.PcItem("help"),
			readline.PcItem("exit"),
		),
		HistoryFile: filepath.Join(os.TempDir(), "hioload-dispatch-console.history"),
	})
	if err != nil {
		return err
	}
	defer input.Close()
	input.CaptureExitSignal()

	for {
		line, err := input.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return nil
			}
			log.Println(err)
			continue
		}
		if quit := c.handle(line); quit {
			return nil
		}
	}
}

// console talks to the /debug/probes and /metrics endpoints of a running instance.
type console struct {
	base   string
	client *http.Client
	out    io.Writer
}

// handle runs one command line and reports whether the console should exit.
func (c *console) handle(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	var err error
	switch strings.ToLower(fields[0]) {
	case "exit", "quit":
		return true
	case "help":
		fmt.Fprintln(c.out, consoleHelp)
	case "probes":
		err = c.probes("")
	case "probe":
		if len(fields) < 2 {
			err = errors.New("usage: probe <name>")
			break
		}
		err = c.probes(fields[1])
	case "metrics":
		prefix := ""
		if len(fields) > 1 {
			prefix = fields[1]
		}
		err = c.metrics(prefix)
	default:
		err = fmt.Errorf("unknown command %q, try help", fields[0])
	}
	if err != nil {
		fmt.Fprintln(c.out, "error:", err)
	}
	return false
}

func (c *console) get(path string, query url.Values) (io.ReadCloser, error) {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	resp, err := c.client.Get(u)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	return resp.Body, nil
}

func (c *console) probes(name string) error {
	q := url.Values{}
	if name != "" {
		q.Set("name", name)
	}
	body, err := c.get("/debug/probes", q)
	if err != nil {
		return err
	}
	defer body.Close()

	var v any
	if err := json.NewDecoder(body).Decode(&v); err != nil {
		return err
	}
	if m, ok := v.(map[string]any); ok && name == "" {
		for _, k := range sortedKeys(m) {
			fmt.Fprintf(c.out, "%-24s %s\n", k, render.Render(m[k]))
		}
		return nil
	}
	fmt.Fprintln(c.out, render.Render(v))
	return nil
}

func (c *console) metrics(prefix string) error {
	body, err := c.get("/metrics", nil)
	if err != nil {
		return err
	}
	defer body.Close()
	sc := bufio.NewScanner(body)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "#") || !strings.HasPrefix(line, prefix) {
			continue
		}
		fmt.Fprintln(c.out, line)
	}
	return sc.Err()
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
