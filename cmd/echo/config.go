package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"
)

type config struct {
	FS *flag.FlagSet

	Addr      string
	Transport string
	Message   string
	CACert    string
	Insecure  bool
	Timeout   time.Duration
}

func (c *config) Parse(args []string) error {
	c.FS = flag.NewFlagSet("echo", flag.ExitOnError)
	c.FS.StringVar(&c.Addr, "addr", "localhost:7070", "server address")
	c.FS.StringVar(&c.Transport, "transport", "tcp", "transport to dial: tcp, quic or udp")
	c.FS.StringVar(&c.Message, "message", "hello", "message to send")
	c.FS.StringVar(&c.CACert, "ca-cert", "", "path to the server CA certificate, for quic")
	c.FS.BoolVar(&c.Insecure, "insecure", false, "skip server certificate verification, for quic")
	c.FS.DurationVar(&c.Timeout, "timeout", 5*time.Second, "time to wait for the reply")
	c.FS.Usage = func() {
		fmt.Fprintln(c.FS.Output())
		fmt.Fprintln(c.FS.Output(), "Usage: echo [OPTIONS]")
		fmt.Fprintln(c.FS.Output(), "Options:")
		c.FS.PrintDefaults()
	}

	if err := c.FS.Parse(args); err != nil {
		return err
	}

	switch c.Transport {
	case "tcp", "quic", "udp":
	default:
		return fmt.Errorf("unknown transport: %s", c.Transport)
	}

	if c.Message == "" {
		return errors.New("missing message")
	}

	return nil
}

func abort(fs *flag.FlagSet, err error) {
	fmt.Fprintf(fs.Output(), "Error: %v\n", err)
	fs.Usage()
	os.Exit(2)
}
