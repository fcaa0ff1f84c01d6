package search

import (
	"html"
	"log"
	"strings"

	"anoa.com/evalhub/internal/model"
	"github.com/google/uuid"
	"github.com/meilisearch/meilisearch-go"
	"github.com/microcosm-cc/bluemonday"
)

const usersIndex = "users"

type Service interface {
	IndexUsers(users []model.UserProfile) error
	DeleteUser(id uuid.UUID) error
}

type service struct {
	client    meilisearch.ServiceManager
	sanitizer *bluemonday.Policy
}

func NewService(client meilisearch.ServiceManager) Service {
	s := &service{
		client:    client,
		sanitizer: bluemonday.StrictPolicy(),
	}
	s.initIndex()
	return s
}

func (s *service) initIndex() {
	filterable := []any{"is_superuser", "language"}
	if _, err := s.client.Index(usersIndex).UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("Failed to update users filterable attributes: %v", err)
	}

	sortable := []string{"created_at", "name"}
	if _, err := s.client.Index(usersIndex).UpdateSortableAttributes(&sortable); err != nil {
		log.Printf("Failed to update users sortable attributes: %v", err)
	}
}

type meiliUserDoc struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	Title       string `json:"title"`
	IsSuperuser bool   `json:"is_superuser"`
	Language    string `json:"language"`
	CreatedAt   int64  `json:"created_at"`
}

// cleanForIndex strips markup and entities from user-supplied display
// fields before they reach the index.
func (s *service) cleanForIndex(value string) string {
	sanitized := s.sanitizer.Sanitize(value)
	clean := html.UnescapeString(sanitized)
	return strings.Join(strings.Fields(clean), " ")
}

func (s *service) IndexUsers(users []model.UserProfile) error {
	if len(users) == 0 {
		return nil
	}
	docs := make([]meiliUserDoc, 0, len(users))
	for _, u := range users {
		docs = append(docs, meiliUserDoc{
			ID:          u.ID.String(),
			Email:       u.EmailOrEmpty(),
			Name:        s.cleanForIndex(u.DisplayName()),
			Title:       s.cleanForIndex(u.Title),
			IsSuperuser: u.IsSuperuser,
			Language:    u.Language,
			CreatedAt:   u.CreatedAt.Unix(),
		})
	}

	task, err := s.client.Index(usersIndex).AddDocuments(docs, strPtr("id"))
	if err != nil {
		return err
	}
	log.Printf("Indexed %d user(s), task id: %d", len(docs), task.TaskUID)
	return nil
}

func (s *service) DeleteUser(id uuid.UUID) error {
	task, err := s.client.Index(usersIndex).DeleteDocument(id.String())
	if err != nil {
		return err
	}
	log.Printf("Removed user %s from index, task id: %d", id, task.TaskUID)
	return nil
}

func strPtr(s string) *string {
	return &s
}
