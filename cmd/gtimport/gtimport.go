package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"github.com/vruscope/vruscope/pkg/nn"
	"github.com/vruscope/vruscope/pkg/vidlib"
	"github.com/vruscope/vruscope/server/detectdb"
)

func check(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func main() {
	parser := argparse.NewParser("gtimport", "Import ground truth labels for a video")
	input := parser.String("i", "input", &argparse.Options{Help: "Video that the labels belong to", Required: true})
	labelsPath := parser.String("l", "labels", &argparse.Options{Help: "Label file (VideoLabels JSON)", Required: true})
	dbPath := parser.String("", "db", &argparse.Options{Help: "Detection database", Default: "vruscope.sqlite"})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	check(err)
	db, err := detectdb.NewDetectDB(logger, dbh.MakeSqliteConfig(*dbPath))
	check(err)

	labelsB, err := os.ReadFile(*labelsPath)
	check(err)
	labels := nn.VideoLabels{}
	check(json.Unmarshal(labelsB, &labels))

	info, err := vidlib.ProbeVideo(*input)
	check(err)
	video, err := db.GetOrCreateVideo(info)
	check(err)

	n, err := db.ImportGroundTruth(video.ID, &labels)
	check(err)
	fmt.Printf("Imported %v ground truth objects for video %v (%v)\n", n, video.ID, video.SourcePath)
}
