package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Drive stores blobs as files inside one application folder in Google Drive.
// Blob keys may contain slashes; Drive has no real directories, so keys are
// flattened into file names.
type Drive struct {
	svc      *drive.Service
	folderID string
}

const driveFolderMime = "application/vnd.google-apps.folder"

// NewDrive builds a Drive store using an OAuth-authenticated HTTP client.
// The named folder is created at the Drive root if it does not exist.
func NewDrive(ctx context.Context, httpClient *http.Client, folderName string) (*Drive, error) {
	svc, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("drive service: %w", err)
	}
	d := &Drive{svc: svc}
	if folderName == "" {
		folderName = "Instagram_Bot_Data"
	}
	q := fmt.Sprintf("name='%s' and mimeType='%s' and trashed=false", folderName, driveFolderMime)
	list, err := svc.Files.List().Q(q).Fields("files(id)").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("find drive folder: %w", err)
	}
	if len(list.Files) > 0 {
		d.folderID = list.Files[0].Id
		return d, nil
	}
	folder, err := svc.Files.Create(&drive.File{Name: folderName, MimeType: driveFolderMime}).
		Fields("id").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("create drive folder: %w", err)
	}
	d.folderID = folder.Id
	return d, nil
}

func driveName(key string) string {
	return strings.ReplaceAll(key, "/", "__")
}

func driveKey(name string) string {
	return strings.ReplaceAll(name, "__", "/")
}

func (d *Drive) find(ctx context.Context, key string) (string, error) {
	q := fmt.Sprintf("name='%s' and '%s' in parents and trashed=false", driveName(key), d.folderID)
	list, err := d.svc.Files.List().Q(q).Fields("files(id)").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("drive lookup: %w", err)
	}
	if len(list.Files) == 0 {
		return "", nil
	}
	return list.Files[0].Id, nil
}

func (d *Drive) Put(ctx context.Context, key string, data []byte) error {
	id, err := d.find(ctx, key)
	if err != nil {
		return err
	}
	if id != "" {
		_, err = d.svc.Files.Update(id, &drive.File{}).
			Media(bytes.NewReader(data)).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("drive update: %w", err)
		}
		return nil
	}
	_, err = d.svc.Files.Create(&drive.File{Name: driveName(key), Parents: []string{d.folderID}}).
		Media(bytes.NewReader(data)).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("drive upload: %w", err)
	}
	return nil
}

func (d *Drive) Get(ctx context.Context, key string) ([]byte, bool, error) {
	id, err := d.find(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if id == "" {
		return nil, false, nil
	}
	resp, err := d.svc.Files.Get(id).Context(ctx).Download()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("drive download: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("drive read: %w", err)
	}
	return data, true, nil
}

func (d *Drive) Delete(ctx context.Context, key string) error {
	id, err := d.find(ctx, key)
	if err != nil {
		return err
	}
	if id == "" {
		return nil
	}
	if err := d.svc.Files.Delete(id).Context(ctx).Do(); err != nil {
		return fmt.Errorf("drive delete: %w", err)
	}
	return nil
}

func (d *Drive) List(ctx context.Context, prefix string) ([]string, error) {
	q := fmt.Sprintf("'%s' in parents and trashed=false", d.folderID)
	var keys []string
	pageToken := ""
	for {
		call := d.svc.Files.List().Q(q).Fields("nextPageToken, files(name)").Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		list, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("drive list: %w", err)
		}
		for _, f := range list.Files {
			if key := driveKey(f.Name); strings.HasPrefix(key, prefix) {
				keys = append(keys, key)
			}
		}
		if list.NextPageToken == "" {
			return keys, nil
		}
		pageToken = list.NextPageToken
	}
}
