package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cheggaaa/pb"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/SERDSDDAM/SurpadClone/pkg/pipeline"
)

// submitCmd pushes a raster through a running dispatcher, the quickest
// way to exercise a deployment end to end.
var submitCmd = &cobra.Command{
	Use:   "submit <file>",
	Short: "Upload a raster to a running dispatcher and optionally wait for it.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		baseURL, _ := cmd.Flags().GetString("url")
		layerID, _ := cmd.Flags().GetString("layer-id")
		priority, _ := cmd.Flags().GetString("priority")
		allowMissingCRS, _ := cmd.Flags().GetBool("allow-missing-crs")
		wait, _ := cmd.Flags().GetBool("wait")

		resp, err := upload(baseURL, args[0], layerID, priority, allowMissingCRS)
		if err != nil {
			return err
		}
		fmt.Printf("job %s queued for layer %s\n", resp.JobID, resp.LayerID)
		if !wait {
			return nil
		}
		return waitForJob(baseURL, resp.JobID)
	},
}

type submitResponse struct {
	JobID   string `json:"job_id"`
	LayerID string `json:"layer_id"`
	Status  string `json:"status"`
}

type jobResponse struct {
	JobID    string                 `json:"job_id"`
	Status   string                 `json:"status"`
	Progress int                    `json:"progress"`
	Metadata map[string]interface{} `json:"metadata"`
}

// upload streams the file as multipart form data with a byte-level
// progress bar. The body is not rewindable, so the POST itself is not
// retried; polling afterwards is.
func upload(baseURL, path, layerID, priority string, allowMissingCRS bool) (*submitResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed opening %s", path)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "failed inspecting %s", path)
	}

	bar := pb.New64(fi.Size()).SetUnits(pb.U_BYTES)
	bar.Start()
	defer bar.Finish()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		defer pw.Close()
		defer mw.Close()
		if layerID != "" {
			mw.WriteField("layer_id", layerID)
		}
		if priority != "" {
			mw.WriteField("priority", priority)
		}
		if allowMissingCRS {
			mw.WriteField("allow_missing_crs", "true")
		}
		part, err := mw.CreateFormFile("file", filepath.Base(path))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, bar.NewProxyReader(f)); err != nil {
			pw.CloseWithError(err)
		}
	}()

	req, err := http.NewRequest("POST", baseURL+"/enqueue", pr)
	if err != nil {
		return nil, errors.Wrap(err, "failed building upload request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed uploading")
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("dispatcher rejected upload: %s: %s", resp.Status, body)
	}

	out := submitResponse{}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, errors.Wrap(err, "failed decoding dispatcher response")
	}
	return &out, nil
}

// waitForJob polls job status until it reaches a terminal state,
// showing job progress as a bar.
func waitForJob(baseURL, jobID string) error {
	client := retryablehttp.NewClient()
	client.RetryMax = 4
	client.Logger = nil

	bar := pb.New(100)
	bar.Start()
	defer bar.Finish()

	for {
		resp, err := client.Get(fmt.Sprintf("%s/jobs/%s", baseURL, jobID))
		if err != nil {
			return errors.Wrap(err, "failed polling job status")
		}
		job := jobResponse{}
		err = json.NewDecoder(resp.Body).Decode(&job)
		resp.Body.Close()
		if err != nil {
			return errors.Wrap(err, "failed decoding job status")
		}

		bar.Set(job.Progress)
		if pipeline.JobStatus(job.Status).Terminal() {
			bar.Finish()
			fmt.Printf("job %s %s\n", jobID, job.Status)
			if job.Status != string(pipeline.JobCompleted) {
				if detail, ok := job.Metadata["error"]; ok {
					return errors.Errorf("%v", detail)
				}
				return errors.Errorf("job ended %s", job.Status)
			}
			if url, ok := job.Metadata["png_url"]; ok {
				fmt.Printf("preview: %v\n", url)
			}
			return nil
		}
		time.Sleep(2 * time.Second)
	}
}

func init() {
	rootCmd.AddCommand(submitCmd)
	submitCmd.Flags().String("url", "http://localhost:8001", "dispatcher base URL")
	submitCmd.Flags().String("layer-id", "", "layer id to (re)process; defaults to a generated one")
	submitCmd.Flags().String("priority", "", "set to 'high' to jump the queue")
	submitCmd.Flags().Bool("allow-missing-crs", false, "treat rasters without a CRS as EPSG:4326")
	submitCmd.Flags().Bool("wait", false, "poll until the job reaches a terminal state")
}
