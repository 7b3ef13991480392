package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rpattn/vendorflow/internal/ingestion"
)

var errStopDecode = errors.New("stop")

func newSuggestCmd(s *session) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "suggest [header...]",
		Short: "Suggest canonical fields for vendor headers",
		Long:  "Suggestions are advisory only. Headers come from the arguments or from the first record of --file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			headers := args
			if file != "" {
				fromFile, err := fileHeaders(cmd.Context(), file)
				if err != nil {
					return err
				}
				headers = append(headers, fromFile...)
			}
			if len(headers) == 0 {
				return errors.New("no headers given: pass them as arguments or use --file")
			}
			fields := s.app.CanonicalFields()
			if len(fields) == 0 {
				return fmt.Errorf("vendor %q has no canonical fields to suggest", s.app.Cfg.Pipeline.Vendor)
			}

			suggestions, err := s.app.Suggester.Suggest(cmd.Context(), headers, fields)
			if err != nil {
				return err
			}
			if isJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), suggestions)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "VENDOR FIELD\tCANONICAL FIELD\tCONFIDENCE\tRATIONALE")
			for _, sg := range suggestions {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\n", sg.VendorField, sg.CanonicalField, sg.Confidence, sg.Rationale)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Read headers from the first record of this file")
	return cmd
}

// fileHeaders decodes just the first record of a file and returns its
// field names, sorted.
func fileHeaders(ctx context.Context, path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	head = head[:n]
	decoder, err := ingestion.DecoderFor(ingestion.Detect(filepath.Base(path), head))
	if err != nil {
		return nil, err
	}

	var headers []string
	err = decoder.Decode(ctx, io.MultiReader(bytes.NewReader(head), f), 1, func(records []ingestion.Record) error {
		for _, rec := range records {
			if rec.Err != nil {
				continue
			}
			for field := range rec.Fields {
				headers = append(headers, field)
			}
			return errStopDecode
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopDecode) {
		return nil, err
	}
	sort.Strings(headers)
	return headers, nil
}
