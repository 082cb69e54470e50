package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/balance-lab/forceplate/internal/client"
	"github.com/balance-lab/forceplate/internal/db"
	"github.com/balance-lab/forceplate/internal/monitoring"
	"github.com/balance-lab/forceplate/internal/report"
)

// recordBatch is how many samples are buffered per insert transaction.
const recordBatch = 50

var timeNow = time.Now

type streamer interface {
	Stream(ctx context.Context, kind string, fn func(client.Reading)) error
}

// record captures the kind stream from s into a new recording until ctx is
// done. Samples are flushed in batches and once more at the end.
func record(ctx context.Context, s streamer, store *db.DB, kind, note string) (*db.Recording, error) {
	rec, err := store.StartRecording(kind, note, timeNow())
	if err != nil {
		return nil, err
	}

	batch := make([]db.Sample, 0, recordBatch)
	var flushErr error
	flush := func() {
		if len(batch) == 0 || flushErr != nil {
			return
		}
		if err := store.AddSamples(rec.ID, batch); err != nil {
			flushErr = fmt.Errorf("store samples: %w", err)
		}
		monitoring.Debugf("record: flushed %d samples to %s", len(batch), rec.ID)
		batch = batch[:0]
	}

	err = s.Stream(ctx, kind, func(r client.Reading) {
		batch = append(batch, db.Sample{At: r.At, Weights: r.Weights, CoP: r.CoP})
		if len(batch) >= recordBatch {
			flush()
		}
	})
	flush()
	if !finished(err) {
		return rec, err
	}
	return rec, flushErr
}

// plotRecording renders recording id to pngPath and/or htmlPath; empty
// paths are skipped.
func plotRecording(store *db.DB, id, pngPath, htmlPath string) error {
	rec, err := store.GetRecording(id)
	if err != nil {
		return err
	}
	samples, err := store.Samples(id)
	if err != nil {
		return err
	}
	title := fmt.Sprintf("%s recording %s", rec.Kind, rec.StartedAt.Local().Format("2006-01-02 15:04:05"))
	if rec.Note != "" {
		title += " (" + rec.Note + ")"
	}

	if pngPath != "" {
		if err := report.WritePNG(pngPath, title, samples); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", pngPath)
	}
	if htmlPath != "" {
		f, err := os.Create(htmlPath)
		if err != nil {
			return err
		}
		if err := report.WriteHTML(f, title, samples); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", htmlPath)
	}
	return nil
}
