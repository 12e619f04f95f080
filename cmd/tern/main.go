package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/denismitr/tern/v4/internal/cli"
	"github.com/mattn/go-isatty"
)

func main() {
	color := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

	if err := run(color); err != nil {
		fmt.Fprintln(os.Stderr, cli.FormatError(err, color))
		os.Exit(1)
	}
}

func run(color bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := cli.New()
	if err != nil {
		return err
	}

	if err := c.Parse(os.Args[1:]); err != nil {
		return err
	}

	return c.Execute(&cli.Context{
		Ctx:    ctx,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Color:  color,
	})
}
