package cloud

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"pipetrack/pkg/logging"
)

const (
	// ZipName is the archive produced by ZipProject in the working directory.
	ZipName = "project.zip"
	// markerFile is placed inside the archive so the backend can associate
	// the upload with its run.
	markerFile = ".pipetrack-cloud"

	lockFile      = "requirements.lock.txt"
	cloudConfFile = "cloud.yaml"
)

// ErrMissingLockFile aborts an upload before anything is zipped or sent.
var ErrMissingLockFile = errors.New(
	"Missing requirements.lock.txt file, add one with the dependencies to install when running your project")

// ProjectConfig is the optional cloud.yaml describing how the project
// runs in the cloud. Unknown fields are rejected so typos surface
// before the upload happens.
type ProjectConfig struct {
	Environment string `yaml:"environment" validate:"required"`
	VCPUs       int    `yaml:"vcpus,omitempty" validate:"omitempty,gt=0"`
	MemoryGiB   int    `yaml:"memory_gib,omitempty" validate:"omitempty,gt=0"`
}

// LoadProjectConfig reads and validates a cloud.yaml file.
func LoadProjectConfig(path string) (ProjectConfig, error) {
	var cfg ProjectConfig
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("could not open %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("invalid %s: %w", path, err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid %s: %w", path, err)
	}
	return cfg, nil
}

// ZipOptions control ZipProject.
type ZipOptions struct {
	// Force overwrites an existing project.zip.
	Force bool
	// Runid and GithubNumber are recorded in the in-archive marker file.
	Runid        string
	GithubNumber string
	Verbose      bool
	// IgnorePrefixes excludes any path whose first element matches.
	IgnorePrefixes []string
}

// ZipProject archives the current directory into project.zip, adding a
// marker file that ties the archive to its run. The archive itself is
// never included, even on re-runs.
func ZipProject(opts ZipOptions) error {
	if _, err := os.Stat(ZipName); err == nil {
		if !opts.Force {
			return fmt.Errorf("%s already exists, pass force to overwrite", ZipName)
		}
		if err := os.Remove(ZipName); err != nil {
			return fmt.Errorf("could not remove existing %s: %w", ZipName, err)
		}
	}

	out, err := os.Create(ZipName)
	if err != nil {
		return fmt.Errorf("could not create %s: %w", ZipName, err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)

	err = filepath.WalkDir(".", func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == "." || path == ZipName {
			return nil
		}
		if ignored(path, opts.IgnorePrefixes) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		name := filepath.ToSlash(path)
		if d.IsDir() {
			// Directory entries carry a trailing slash.
			_, err := zw.Create(name + "/")
			return err
		}

		if opts.Verbose {
			logging.Info("cloud", "adding %s", name)
		}
		w, err := zw.Create(name)
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	})
	if err != nil {
		zw.Close()
		return fmt.Errorf("could not zip project: %w", err)
	}

	marker, err := zw.Create(markerFile)
	if err != nil {
		zw.Close()
		return fmt.Errorf("could not add run marker: %w", err)
	}
	if _, err := fmt.Fprintf(marker, "%s@%s", opts.Runid, opts.GithubNumber); err != nil {
		zw.Close()
		return fmt.Errorf("could not write run marker: %w", err)
	}

	return zw.Close()
}

func ignored(path string, prefixes []string) bool {
	first := filepath.ToSlash(path)
	if i := strings.IndexRune(first, '/'); i >= 0 {
		first = first[:i]
	}
	for _, prefix := range prefixes {
		if first == prefix {
			return true
		}
	}
	return false
}

// RunsNew registers a new run and returns the server-assigned runid.
func (c *Client) RunsNew(ctx context.Context, metadata map[string]any) (string, error) {
	body, err := c.do(ctx, http.MethodPost, "/runs", metadata, "")
	if err != nil {
		return "", err
	}
	var resp struct {
		Runid string `json:"runid"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("could not parse runs response: %w", err)
	}
	return resp.Runid, nil
}

// GetPresignedLink returns the storage URL the zipped project must be
// uploaded to.
func (c *Client) GetPresignedLink(ctx context.Context, runid string) (string, error) {
	body, err := c.do(ctx, http.MethodGet, "/runs/"+runid+"/upload-link", nil, "")
	if err != nil {
		return "", err
	}
	var resp struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("could not parse upload-link response: %w", err)
	}
	return resp.URL, nil
}

// UploadZippedProject PUTs project.zip to a presigned storage link.
func (c *Client) UploadZippedProject(ctx context.Context, link string) error {
	f, err := os.Open(ZipName)
	if err != nil {
		return fmt.Errorf("could not open %s: %w", ZipName, err)
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, link, f)
	if err != nil {
		return fmt.Errorf("could not build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/zip")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("upload failed: storage returned %s", resp.Status)
	}
	return nil
}

// Trigger starts execution of an uploaded run.
func (c *Client) Trigger(ctx context.Context, runid string) error {
	_, err := c.do(ctx, http.MethodPost, "/runs/"+runid+"/trigger", nil, "")
	return err
}

// UploadProject registers a run, zips the current project, uploads the
// archive and triggers execution, returning the runid. The project must
// carry a requirements.lock.txt; an existing cloud.yaml is validated
// before anything is sent.
func (c *Client) UploadProject(ctx context.Context) (string, error) {
	if _, err := os.Stat(lockFile); err != nil {
		return "", ErrMissingLockFile
	}

	metadata := map[string]any{}
	if _, err := os.Stat(cloudConfFile); err == nil {
		cfg, err := LoadProjectConfig(cloudConfFile)
		if err != nil {
			return "", err
		}
		metadata["environment"] = cfg.Environment
		if cfg.VCPUs > 0 {
			metadata["vcpus"] = cfg.VCPUs
		}
		if cfg.MemoryGiB > 0 {
			metadata["memory_gib"] = cfg.MemoryGiB
		}
	}

	runid, err := c.RunsNew(ctx, metadata)
	if err != nil {
		return "", err
	}

	if err := ZipProject(ZipOptions{Force: true, Runid: runid}); err != nil {
		return "", err
	}

	link, err := c.GetPresignedLink(ctx, runid)
	if err != nil {
		return "", err
	}
	if err := c.UploadZippedProject(ctx, link); err != nil {
		return "", err
	}
	if err := c.Trigger(ctx, runid); err != nil {
		return "", err
	}

	logging.Info("cloud", "run %s uploaded and triggered", runid)
	return runid, nil
}
