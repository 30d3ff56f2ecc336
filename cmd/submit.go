package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"qrscanner/internal/api/handler"
	"qrscanner/pkg/controller"
	"qrscanner/pkg/pagegroup"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

type submitOptions struct {
	domains     []string
	utm         []string
	searchTexts []string
	timeout     int
	extractText bool
	aiQuery     string
	keywords    []string
	follow      bool
}

// fields returns the form fields of the scan request. Lists are joined with
// the separators the form expects.
func (o submitOptions) fields() map[string][]string {
	f := map[string][]string{
		"timeout":      {strconv.Itoa(o.timeout)},
		"extract_text": {strconv.FormatBool(o.extractText)},
	}
	if len(o.domains) > 0 {
		f["expected_domains"] = []string{strings.Join(o.domains, ",")}
	}
	if len(o.utm) > 0 {
		f["expected_utm_params"] = []string{strings.Join(o.utm, ";")}
	}
	if len(o.searchTexts) > 0 {
		f["search_texts"] = []string{strings.Join(o.searchTexts, ";")}
	}
	if o.aiQuery != "" {
		f["ai_query"] = []string{o.aiQuery}
		f["extraction_keywords"] = o.keywords
	}

	return f
}

func submitCommand(a *app) *cobra.Command {
	var (
		opts  submitOptions
		wopts watchOptions
	)
	cmd := &cobra.Command{
		Use:   "submit FILE.pdf",
		Short: "Uploads a PDF for scanning and follows the scan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			res, err := submit(ctx, http.DefaultClient, a.cfg.HTTP.PublicURL, args[0], opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scan %s is %s\n", res.ScanID, res.Status)
			if !opts.follow {
				return nil
			}

			policy, err := pagegroup.ParseTextPolicy(a.cfg.Display.ExtractionText)
			if err != nil {
				return err
			}

			return watch(ctx, a.cfg.HTTP.PublicURL, res.ScanID, policy, wopts, cmd.OutOrStdout())
		},
	}

	fl := cmd.Flags()
	fl.StringSliceVar(&opts.domains, "domain", nil, "Expected domain of the QR code URLs, repeatable")
	fl.StringSliceVar(&opts.utm, "utm", nil, "Expected UTM parameter as key=value, repeatable")
	fl.StringArrayVar(&opts.searchTexts, "search", nil, "Text expected on the landing pages, repeatable")
	fl.IntVar(&opts.timeout, "timeout", 10, "Timeout of each URL check in seconds")
	fl.BoolVar(&opts.extractText, "extract-text", false, "Extract the text lines of odd pages")
	fl.StringVar(&opts.aiQuery, "ai-query", "", "Enables AI extraction with the given query")
	fl.StringArrayVar(&opts.keywords, "keyword", nil, "Field the AI extraction should look for, repeatable")
	fl.BoolVar(&opts.follow, "follow", true, "Follow the scan on the push channel")
	wopts.flags(cmd)

	return cmd
}

// submit uploads path to the scan endpoint of the server at publicURL.
func submit(ctx context.Context,
	httpClient *http.Client,
	publicURL, path string,
	opts submitOptions) (*handler.SubmitResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open file: %w", err)
	}
	defer f.Close()

	// stream the upload instead of buffering documents of up to the size limit
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeForm(mw, filepath.Base(path), f, opts.fields()))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(publicURL, "/")+"/scan", pr)
	if err != nil {
		_ = pr.Close()

		return nil, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not upload file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		var e controller.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
			return nil, fmt.Errorf("upload failed with status %d", resp.StatusCode)
		}

		return nil, errors.New(e.Error)
	}

	var res handler.SubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("could not decode response: %w", err)
	}

	return &res, nil
}

func writeForm(mw *multipart.Writer, name string, file io.Reader, fields map[string][]string) error {
	for k, vs := range fields {
		for _, v := range vs {
			if err := mw.WriteField(k, v); err != nil {
				return fmt.Errorf("could not write %s: %w", k, err)
			}
		}
	}

	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		return fmt.Errorf("could not create file part: %w", err)
	}
	if _, err := io.Copy(fw, file); err != nil {
		return fmt.Errorf("could not write file part: %w", err)
	}

	return mw.Close()
}
