package call

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"chamada/internal/classify"
)

// dateLayout is the calendar-date string stored with every event so same-day
// counting needs no composite timestamp index.
const dateLayout = "2006-01-02"

// Service records call events, counts same-day repeats and clears panels.
type Service struct {
	repo       Repository
	classifier *classify.Classifier
	retention  time.Duration
	now        func() time.Time
}

// NewService builds a service. retention bounds how long events stay visible
// on panels (default 10 minutes).
func NewService(repo Repository, classifier *classify.Classifier, retention time.Duration) *Service {
	if retention <= 0 {
		retention = 10 * time.Minute
	}
	return &Service{
		repo:       repo,
		classifier: classifier,
		retention:  retention,
		now:        time.Now,
	}
}

// Record persists a call event in the bucket derived from the submitted
// class label and returns the student's same-day call count including this
// one. The count is the pre-write count plus one: a concurrent double
// submission may briefly under-count, which is accepted in exchange for no
// read-after-write on the hot path.
func (s *Service) Record(ctx context.Context, studentID, studentName, classLabel string) (int, error) {
	studentID = strings.TrimSpace(studentID)
	if studentID == "" || studentName == "" {
		return 0, fmt.Errorf("student id and name are required")
	}

	bucket := s.classifier.BucketFor(classLabel)
	date := s.now().Format(dateLayout)

	previous, err := s.repo.CountByStudentAndDate(ctx, bucket, studentID, date)
	if err != nil {
		log.Printf("same-day count failed for %s, assuming 0: %v", studentID, err)
		previous = 0
	}

	evt := Event{
		StudentID:   studentID,
		StudentName: studentName,
		ClassLabel:  strings.TrimSpace(classLabel),
		Colecao:     bucket,
		CallDate:    date,
	}
	if err := s.repo.Insert(ctx, evt); err != nil {
		return 0, err
	}
	return previous + 1, nil
}

// CountToday returns how many times a student was called today, within the
// bucket the class label resolves to.
func (s *Service) CountToday(ctx context.Context, studentID, classLabel string) (int, error) {
	bucket := s.classifier.BucketFor(classLabel)
	return s.repo.CountByStudentAndDate(ctx, bucket, strings.TrimSpace(studentID), s.now().Format(dateLayout))
}

// ListPanel returns the live (unexpired) events of one collection, for the
// polling panel pages.
func (s *Service) ListPanel(ctx context.Context, colecao string) ([]Event, error) {
	bucket := classify.Bucket(colecao)
	known := false
	for _, b := range classify.Buckets() {
		if b == bucket {
			known = true
			break
		}
	}
	if !known {
		return nil, fmt.Errorf("unknown panel collection %q", colecao)
	}
	return s.repo.ListSince(ctx, bucket, s.now().Add(-s.retention))
}

// ClearAll deletes every event in every collection. Irreversible; the caller
// owns any confirmation step.
func (s *Service) ClearAll(ctx context.Context) error {
	return s.repo.DeleteAll(ctx)
}
