package main

import (
	"bufio"
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/loomlabs/loom/internal/model"
	"github.com/loomlabs/loom/internal/weave"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Ingest raw records from a JSON or NDJSON file",
	Long:  "Reads records from a file (a JSON array or newline-delimited JSON objects) and stores them. Re-ingesting a record with the same source, kind, and external id updates it in place.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initQuery(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		recs, err := readRecords(args[0])
		if err != nil {
			return err
		}

		n, err := weave.IngestRecords(ctx, e.Store, recs)
		if err != nil {
			return err
		}

		zap.L().Info("ingest complete", zap.Int("records", n), zap.String("file", args[0]))
		cmd.Printf("Ingested %d records\n", n)
		return nil
	},
}

// readRecords accepts either a top-level JSON array or NDJSON.
func readRecords(path string) ([]model.RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	first, err := br.Peek(1)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read %s", path)
	}

	if first[0] == '[' {
		var recs []model.RawRecord
		if err := json.NewDecoder(br).Decode(&recs); err != nil {
			return nil, eris.Wrapf(err, "ingest: parse %s", path)
		}
		return recs, nil
	}

	var recs []model.RawRecord
	dec := json.NewDecoder(br)
	for {
		var rec model.RawRecord
		if err := dec.Decode(&rec); err == io.EOF {
			break
		} else if err != nil {
			return nil, eris.Wrapf(err, "ingest: parse %s line %d", path, len(recs)+1)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
