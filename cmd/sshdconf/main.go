// Package main is the sshdconf entry point.
package main

//go:generate go run ../generate_completion_documentation.go completion ../../generated
//go:generate go run ../generate_completion_documentation.go man ../../generated

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/ubuntu/go-i18n"
	"github.com/ubuntu/sshdconf/cmd/sshdconf/commands"
	"github.com/ubuntu/sshdconf/internal/consts"
	"github.com/ubuntu/sshdconf/internal/sshderr"
	"github.com/ubuntu/sshdconf/po"
)

type app interface {
	Run() error
	UsageError() bool
	Quit(syscall.Signal) error
}

func run(a app) int {
	i18n.InitI18nDomain(consts.TEXTDOMAIN, po.Files)
	defer installSignalHandler(a)()
	log.SetFormatter(&log.TextFormatter{
		DisableLevelTruncation: true,
		DisableTimestamp:       true,
	})

	if err := a.Run(); err != nil {
		log.Error(err)

		if a.UsageError() {
			return sshderr.ExitUsageError
		}
		return sshderr.ExitCode(err)
	}

	return sshderr.ExitSuccess
}

func installSignalHandler(a app) func() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)

	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			switch v, ok := <-c; v {
			case syscall.SIGINT, syscall.SIGTERM:
				if err := a.Quit(syscall.SIGINT); err != nil {
					log.Fatalf("failed to quit: %v", err)
				}
				return
			default:
				// channel was closed: we exited
				if !ok {
					return
				}
			}
		}
	}()

	return func() {
		signal.Stop(c)
		close(c)
		wg.Wait()
	}
}

func main() {
	os.Exit(run(commands.New()))
}
