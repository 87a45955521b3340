package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"kanban-api/domain"
)

// InsertBoard persists a new board document.
func (s *Storage) InsertBoard(ctx context.Context, b *domain.Board) error {
	payload, err := json.Marshal(encodeBoard(b))
	if err != nil {
		return err
	}
	_, err = s.boards.AddEntity(ctx, payload, nil)
	return mapErr(err)
}

// GetBoard retrieves a board together with the entity's ETag, which callers
// pass back to UpdateBoard for an optimistic-concurrency write.
func (s *Storage) GetBoard(ctx context.Context, id string) (*domain.Board, string, error) {
	resp, err := s.boards.GetEntity(ctx, id, id, nil)
	if err != nil {
		return nil, "", mapErr(err)
	}
	b, err := decodeBoard(resp.Value)
	if err != nil {
		return nil, "", err
	}
	return b, string(resp.ETag), nil
}

// UpdateBoard replaces the board document if the stored entity still carries
// the given ETag. A concurrent writer winning the race surfaces as
// domain.ErrConflict.
func (s *Storage) UpdateBoard(ctx context.Context, b *domain.Board, etag string) error {
	b.UpdatedAt = time.Now().UTC()
	payload, err := json.Marshal(encodeBoard(b))
	if err != nil {
		return err
	}
	et := azcore.ETag(etag)
	if etag == "" {
		et = azcore.ETagAny
	}
	_, err = s.boards.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeReplace})
	return mapErr(err)
}

// ListBoardsByProject returns all boards owned by the project.
func (s *Storage) ListBoardsByProject(ctx context.Context, projectID string) ([]domain.Board, error) {
	filter := "ProjectID eq '" + escapeFilterValue(projectID) + "'"
	boards := []domain.Board{}
	err := s.listEntities(ctx, s.boards, filter, func(data []byte) error {
		b, err := decodeBoard(data)
		if err != nil {
			return err
		}
		boards = append(boards, *b)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return boards, nil
}

// DeleteBoard removes the board document only; task cascade is the caller's
// job via DeleteTasksByBoard.
func (s *Storage) DeleteBoard(ctx context.Context, id string) error {
	_, err := s.boards.DeleteEntity(ctx, id, id, nil)
	return mapErr(err)
}
