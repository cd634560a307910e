package main

import (
	"fmt"
	"os"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"github.com/vruscope/vruscope/server/detectdb"
	"github.com/vruscope/vruscope/server/validate"
)

func check(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func fmtMetric(v *float64, low, high *float64) string {
	if v == nil {
		return "n/a"
	}
	if low == nil || high == nil {
		return fmt.Sprintf("%.3f", *v)
	}
	return fmt.Sprintf("%.3f (95%% CI %.3f..%.3f)", *v, *low, *high)
}

func main() {
	parser := argparse.NewParser("vruvalidate", "Validate stored VRU detections against ground truth")
	videoID := parser.Int("v", "video", &argparse.Options{Help: "Video ID", Required: true})
	modelVersion := parser.String("m", "modelversion", &argparse.Options{Help: "Model version to validate", Required: true})
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

	dets, err := db.GetDetections(detectdb.DetectionQuery{VideoID: int64(*videoID), ModelVersion: *modelVersion})
	check(err)
	truth, err := db.GetGroundTruth(int64(*videoID))
	check(err)

	result := validate.MatchVideo(dets, truth, validate.DefaultMatchIoU)
	metric := validate.Summarize(result)
	metric.VideoID = int64(*videoID)
	metric.ModelVersion = *modelVersion
	check(db.AddMetric(metric))

	fmt.Printf("TP %v, FP %v, FN %v (sample size %v)\n", metric.TruePos, metric.FalsePos, metric.FalseNeg, metric.SampleSize)
	fmt.Printf("Precision: %v\n", fmtMetric(metric.Precision, metric.PrecisionLow, metric.PrecisionHigh))
	fmt.Printf("Recall:    %v\n", fmtMetric(metric.Recall, metric.RecallLow, metric.RecallHigh))
	fmt.Printf("F1:        %v\n", fmtMetric(metric.F1, nil, nil))
	for class, tally := range result.PerClass {
		fmt.Printf("  %-16v TP %v, FP %v, FN %v\n", class, tally.TruePos, tally.FalsePos, tally.FalseNeg)
	}

	latest, previous, err := db.LatestTwoMetrics(int64(*videoID), *modelVersion)
	check(err)
	trend := validate.Trend(latest, previous, validate.DefaultTrendThreshold)
	fmt.Printf("Trend: precision %v, recall %v, f1 %v\n", trend.Precision, trend.Recall, trend.F1)
}
