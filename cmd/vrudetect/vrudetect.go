package main

import (
	"context"
	"fmt"
	"os"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"github.com/vruscope/vruscope/pkg/nnload"
	"github.com/vruscope/vruscope/pkg/vidlib"
	"github.com/vruscope/vruscope/server/detectdb"
	"github.com/vruscope/vruscope/server/pipeline"
	"github.com/vruscope/vruscope/server/storage"
)

func check(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func main() {
	parser := argparse.NewParser("vrudetect", "Run VRU detection on a video and store the results")
	input := parser.String("i", "input", &argparse.Options{Help: "Input video", Required: true})
	modelName := parser.String("n", "model", &argparse.Options{Help: "Model name", Required: true})
	modelDir := parser.String("", "modeldir", &argparse.Options{Help: "Path to model dir", Default: "models"})
	dbPath := parser.String("", "db", &argparse.Options{Help: "Detection database", Default: "vruscope.sqlite"})
	evidenceDir := parser.String("", "evidence", &argparse.Options{Help: "Evidence image directory", Default: "evidence"})
	stride := parser.Int("s", "stride", &argparse.Options{Help: "Process every Nth frame", Default: 1})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	check(err)

	db, err := detectdb.NewDetectDB(logger, dbh.MakeSqliteConfig(*dbPath))
	check(err)
	store, err := storage.NewStorageFS(logger, *evidenceDir)
	check(err)

	models := nnload.NewRegistry(logger, *modelDir)
	defer models.Close()
	model, err := models.Load(*modelName)
	check(err)
	modelVersion := model.Detector().Config().Version

	info, err := vidlib.ProbeVideo(*input)
	check(err)
	video, err := db.GetOrCreateVideo(info)
	check(err)

	check(db.TryLockRun(video.ID, modelVersion))
	defer db.UnlockRun(video.ID, modelVersion)

	decoder, err := vidlib.OpenVideo(video.SourcePath)
	check(err)
	defer decoder.Close()

	opts := pipeline.DefaultOptions()
	opts.Stride = *stride

	runner := pipeline.NewRunner(logger, db, store)
	job := pipeline.NewJobManager().NewJob(video.ID, modelVersion)
	report, err := runner.Run(context.Background(), job, video, decoder, model.Detector(), opts)
	check(err)

	fmt.Printf("Processed %v frames (%v skipped, %v failed), %v detections\n",
		report.FramesOK, report.FramesSkipped, report.FramesFailed, report.Detections)
}
