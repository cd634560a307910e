package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/akamensky/argparse"
	"github.com/vruscope/vruscope/server"
)

func main() {
	parser := argparse.NewParser("vruscope", "Detection validation service for vulnerable road users")
	configFilePath := parser.String("c", "config", &argparse.Options{Help: "Config file path", Default: "vruscope.json"})
	port := parser.String("p", "port", &argparse.Options{Help: "HTTP listen port", Default: ":8080"})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	s, err := server.NewServer(*configFilePath)
	if err != nil {
		panic(err)
	}
	s.ListenForKillSignals()
	if err := s.ListenHTTP(*port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fmt.Printf("%v\n", err)
	}
}
