// Package gdocs stores generated SOPs as Google Docs.
package gdocs

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/voicesop/internal/logging"
	"github.com/fyrsmithlabs/voicesop/internal/upstream"
	"go.uber.org/zap"
	"google.golang.org/api/docs/v1"
	"google.golang.org/api/drive/v3"
)

// Document identifies a created document.
type Document struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

// DocumentURL returns the edit URL for a document id.
func DocumentURL(id string) string {
	return "https://docs.google.com/document/d/" + id + "/edit"
}

// Service creates and edits documents.
type Service struct {
	docs     DocsAPI
	drive    DriveAPI
	folderID string
	logger   *logging.Logger
}

// NewService wires the APIs. folderID may be empty.
func NewService(docsAPI DocsAPI, driveAPI DriveAPI, folderID string, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{docs: docsAPI, drive: driveAPI, folderID: folderID, logger: logger.Named("gdocs")}
}

// CreateDocument creates a titled document holding content as one text
// block. Moving it into the configured folder and granting anyone-reader
// access are attempted but never fail the call.
func (s *Service) CreateDocument(ctx context.Context, title, content string) (*Document, error) {
	id, err := s.docs.Create(ctx, title)
	if err != nil {
		return nil, upstream.Wrap(upstream.ServiceGoogleDocs, "create document", err)
	}
	s.logger.Info(ctx, "document created", zap.String("document_id", id))

	if err := s.insertText(ctx, id, content, false); err != nil {
		return nil, upstream.Wrap(upstream.ServiceGoogleDocs, "insert content", err)
	}

	if s.folderID != "" {
		if err := s.moveToFolder(ctx, id, s.folderID); err != nil {
			s.logger.Warn(ctx, "failed to move document to folder",
				zap.String("document_id", id), zap.String("folder_id", s.folderID), zap.Error(err))
		}
	}

	if err := s.drive.CreatePermission(ctx, id, &drive.Permission{Type: "anyone", Role: "reader"}, false); err != nil {
		s.logger.Warn(ctx, "failed to set document permissions", zap.String("document_id", id), zap.Error(err))
	}

	return &Document{ID: id, URL: DocumentURL(id), Title: title}, nil
}

// UpdateDocument replaces the document body with content, or appends it.
func (s *Service) UpdateDocument(ctx context.Context, docID, content string, appendContent bool) error {
	if !appendContent {
		doc, err := s.docs.Get(ctx, docID)
		if err != nil {
			return upstream.Wrap(upstream.ServiceGoogleDocs, "get document", err)
		}
		if end := bodyEndIndex(doc); end > 2 {
			del := &docs.Request{DeleteContentRange: &docs.DeleteContentRangeRequest{
				Range: &docs.Range{StartIndex: 1, EndIndex: end - 1},
			}}
			if err := s.docs.BatchUpdate(ctx, docID, []*docs.Request{del}); err != nil {
				return upstream.Wrap(upstream.ServiceGoogleDocs, "clear document", err)
			}
		}
	}
	if err := s.insertText(ctx, docID, content, appendContent); err != nil {
		return upstream.Wrap(upstream.ServiceGoogleDocs, "update document", err)
	}
	return nil
}

// GetDocumentText returns the concatenated text of every paragraph.
func (s *Service) GetDocumentText(ctx context.Context, docID string) (string, error) {
	doc, err := s.docs.Get(ctx, docID)
	if err != nil {
		return "", upstream.Wrap(upstream.ServiceGoogleDocs, "get document", err)
	}
	var b strings.Builder
	if doc.Body == nil {
		return "", nil
	}
	for _, el := range doc.Body.Content {
		if el.Paragraph == nil {
			continue
		}
		for _, pe := range el.Paragraph.Elements {
			if pe.TextRun != nil {
				b.WriteString(pe.TextRun.Content)
			}
		}
	}
	return b.String(), nil
}

// Share roles accepted by ShareDocument.
const (
	RoleReader    = "reader"
	RoleCommenter = "commenter"
	RoleWriter    = "writer"
)

// ShareDocument grants email the given role and notifies them.
func (s *Service) ShareDocument(ctx context.Context, docID, email, role string) error {
	switch role {
	case "":
		role = RoleReader
	case RoleReader, RoleCommenter, RoleWriter:
	default:
		return fmt.Errorf("invalid share role %q", role)
	}
	perm := &drive.Permission{Type: "user", Role: role, EmailAddress: email}
	if err := s.drive.CreatePermission(ctx, docID, perm, true); err != nil {
		return upstream.Wrap(upstream.ServiceGoogleDocs, "share document", err)
	}
	return nil
}

// insertText inserts content at index 1, or at the end of the body.
// Markdown is inserted verbatim.
func (s *Service) insertText(ctx context.Context, docID, content string, atEnd bool) error {
	if content == "" {
		return nil
	}
	ins := &docs.InsertTextRequest{Text: content}
	if atEnd {
		ins.EndOfSegmentLocation = &docs.EndOfSegmentLocation{}
	} else {
		ins.Location = &docs.Location{Index: 1}
	}
	return s.docs.BatchUpdate(ctx, docID, []*docs.Request{{InsertText: ins}})
}

func (s *Service) moveToFolder(ctx context.Context, docID, folderID string) error {
	parents, err := s.drive.Parents(ctx, docID)
	if err != nil {
		return err
	}
	return s.drive.Move(ctx, docID, folderID, strings.Join(parents, ","))
}

func bodyEndIndex(doc *docs.Document) int64 {
	if doc == nil || doc.Body == nil || len(doc.Body.Content) == 0 {
		return 0
	}
	return doc.Body.Content[len(doc.Body.Content)-1].EndIndex
}
