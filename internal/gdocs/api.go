package gdocs

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/docs/v1"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// DocsAPI is the subset of the Docs API used here.
type DocsAPI interface {
	Create(ctx context.Context, title string) (string, error)
	BatchUpdate(ctx context.Context, docID string, reqs []*docs.Request) error
	Get(ctx context.Context, docID string) (*docs.Document, error)
}

// DriveAPI is the subset of the Drive API used here.
type DriveAPI interface {
	Parents(ctx context.Context, fileID string) ([]string, error)
	Move(ctx context.Context, fileID, addParent, removeParents string) error
	CreatePermission(ctx context.Context, fileID string, perm *drive.Permission, notify bool) error
}

// Scopes requested for the service account.
var Scopes = []string{docs.DocumentsScope, drive.DriveScope}

// ClientOptions builds API options from a service account key file.
func ClientOptions(ctx context.Context, credentialsPath string) ([]option.ClientOption, error) {
	data, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("reading google credentials: %w", err)
	}
	jwt, err := google.JWTConfigFromJSON(data, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parsing google credentials: %w", err)
	}
	return []option.ClientOption{option.WithTokenSource(jwt.TokenSource(ctx))}, nil
}

// NewAPIs creates Docs and Drive clients sharing the same options.
func NewAPIs(ctx context.Context, opts ...option.ClientOption) (DocsAPI, DriveAPI, error) {
	docsSvc, err := docs.NewService(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("creating docs service: %w", err)
	}
	driveSvc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("creating drive service: %w", err)
	}
	return &docsClient{svc: docsSvc}, &driveClient{svc: driveSvc}, nil
}

type docsClient struct {
	svc *docs.Service
}

func (c *docsClient) Create(ctx context.Context, title string) (string, error) {
	doc, err := c.svc.Documents.Create(&docs.Document{Title: title}).Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return doc.DocumentId, nil
}

func (c *docsClient) BatchUpdate(ctx context.Context, docID string, reqs []*docs.Request) error {
	_, err := c.svc.Documents.BatchUpdate(docID, &docs.BatchUpdateDocumentRequest{Requests: reqs}).Context(ctx).Do()
	return err
}

func (c *docsClient) Get(ctx context.Context, docID string) (*docs.Document, error) {
	return c.svc.Documents.Get(docID).Context(ctx).Do()
}

type driveClient struct {
	svc *drive.Service
}

func (c *driveClient) Parents(ctx context.Context, fileID string) ([]string, error) {
	f, err := c.svc.Files.Get(fileID).Fields("parents").SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return f.Parents, nil
}

func (c *driveClient) Move(ctx context.Context, fileID, addParent, removeParents string) error {
	call := c.svc.Files.Update(fileID, &drive.File{}).
		AddParents(addParent).
		Fields("id, parents").
		SupportsAllDrives(true)
	if removeParents != "" {
		call = call.RemoveParents(removeParents)
	}
	_, err := call.Context(ctx).Do()
	return err
}

func (c *driveClient) CreatePermission(ctx context.Context, fileID string, perm *drive.Permission, notify bool) error {
	call := c.svc.Permissions.Create(fileID, perm).SupportsAllDrives(true)
	if notify {
		call = call.SendNotificationEmail(true)
	}
	_, err := call.Context(ctx).Do()
	return err
}
