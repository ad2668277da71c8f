package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/vbonduro/bloom/internal/service"
)

func newIdentifyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "identify <image>",
		Short: "Identify the plant, flower or insect in an image and save it to the journal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read image: %w", err)
			}

			a, err := newApp(cmd.Context(), opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer a.close()

			st, err := a.capture.NewWorkflow().Run(cmd.Context(), data, detectMIME(data))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n\n%s\n", st.Name, st.FunFact)
			switch st.Step {
			case service.StepSaved:
				fmt.Fprintf(out, "\nSaved to your journal (%s).\n", st.SavedDiscoveryID)
			case service.StepIdentified:
				fmt.Fprintln(out, "\nSign in with `bloom auth signin` to save discoveries.")
			default:
				return errors.New(st.ErrorMessage)
			}
			return nil
		},
	}
}

// detectMIME sniffs the image type, falling back to JPEG.
func detectMIME(data []byte) string {
	if len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP" {
		return "image/webp"
	}
	switch mime := http.DetectContentType(data); mime {
	case "image/png", "image/gif", "image/jpeg":
		return mime
	default:
		return "image/jpeg"
	}
}
