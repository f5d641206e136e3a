package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Fetcher downloads the source model payload into a local directory.
type Fetcher interface {
	Fetch(ctx context.Context, source, dir string) error
}

// HFFetcher downloads a model repository from Hugging Face. Only payload
// files are taken; git metadata is skipped.
type HFFetcher struct {
	BaseURL string // defaults to https://huggingface.co
	Token   string
	client  *http.Client
}

// NewHFFetcher returns a Fetcher authenticated with the given token.
func NewHFFetcher(token string) *HFFetcher {
	return &HFFetcher{
		BaseURL: "https://huggingface.co",
		Token:   token,
		client:  &http.Client{Timeout: 4 * time.Hour},
	}
}

type hfSibling struct {
	Rfilename string `json:"rfilename"`
}

type hfModelInfo struct {
	Siblings []hfSibling `json:"siblings"`
}

// Fetch lists the repository files and downloads each into dir.
func (f *HFFetcher) Fetch(ctx context.Context, source, dir string) error {
	info, err := f.modelInfo(ctx, source)
	if err != nil {
		return err
	}
	if len(info.Siblings) == 0 {
		return fmt.Errorf("source %s has no files", source)
	}

	for _, sib := range info.Siblings {
		if strings.HasPrefix(sib.Rfilename, ".git") {
			continue
		}
		if err := f.download(ctx, source, sib.Rfilename, dir); err != nil {
			return fmt.Errorf("download %s: %w", sib.Rfilename, err)
		}
	}
	return nil
}

func (f *HFFetcher) modelInfo(ctx context.Context, source string) (*hfModelInfo, error) {
	url := fmt.Sprintf("%s/api/models/%s", f.BaseURL, source)
	resp, err := f.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source %s: HTTP %d", source, resp.StatusCode)
	}

	var info hfModelInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("parse model info: %w", err)
	}
	return &info, nil
}

func (f *HFFetcher) download(ctx context.Context, source, name, dir string) error {
	url := fmt.Sprintf("%s/%s/resolve/main/%s", f.BaseURL, source, name)
	resp, err := f.get(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	target := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	out, err := os.Create(target)
	if err != nil {
		return err
	}

	bar := progressbar.DefaultBytes(resp.ContentLength, name)
	if _, err := io.Copy(io.MultiWriter(out, bar), resp.Body); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (f *HFFetcher) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if f.Token != "" {
		req.Header.Set("Authorization", "Bearer "+f.Token)
	}
	return f.client.Do(req)
}
