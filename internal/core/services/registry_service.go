package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/poyrazK/cloudFleet/internal/core/domain"
	"github.com/poyrazK/cloudFleet/internal/core/ports"
)

type registryService struct {
	repo ports.FleetRepository
	// Registry writes are serialized: node records carry credentials and
	// must never be half-written by racing operators.
	mu sync.Mutex
}

// NewRegistryService manages the worker node registry. Mutations are
// owner-tier actions.
func NewRegistryService(repo ports.FleetRepository) ports.RegistryService {
	return &registryService{repo: repo}
}

func (s *registryService) ListNodes(ctx context.Context) ([]domain.Node, error) {
	return s.repo.ListNodes(ctx)
}

func (s *registryService) GetNode(ctx context.Context, address string) (*domain.Node, error) {
	node, err := s.repo.GetNode(ctx, address)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, fmt.Errorf("%w: node %s", domain.ErrNotFound, address)
	}
	return node, nil
}

func (s *registryService) AddNode(ctx context.Context, address, username, password string, addedBy int64) (*domain.Node, error) {
	if err := domain.ValidateNodeAddress(address); err != nil {
		return nil, err
	}
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: node credentials cannot be empty", domain.ErrInvalidInput)
	}
	if err := s.requireOwner(ctx, addedBy); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.repo.GetNode(ctx, address)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateNode, address)
	}

	node := &domain.Node{
		Address:  address,
		Username: username,
		Password: password,
		AddedBy:  addedBy,
		AddedAt:  time.Now(),
	}
	if err := s.repo.CreateNode(ctx, node); err != nil {
		return nil, err
	}
	s.audit(ctx, addedBy, "node_add", address)
	return node, nil
}

func (s *registryService) RemoveNode(ctx context.Context, address string, removedBy int64) error {
	if err := s.requireOwner(ctx, removedBy); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.repo.GetNode(ctx, address)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("%w: node %s", domain.ErrNotFound, address)
	}
	if err := s.repo.DeleteNode(ctx, address); err != nil {
		return err
	}
	s.audit(ctx, removedBy, "node_remove", address)
	return nil
}

func (s *registryService) audit(ctx context.Context, principalID int64, action, address string) {
	entry := &domain.AuditLog{
		ID:           uuid.New().String(),
		PrincipalID:  principalID,
		Action:       action,
		ResourceType: "node",
		ResourceID:   address,
		CreatedAt:    time.Now(),
	}
	if err := s.repo.SaveAuditLog(ctx, entry); err != nil {
		log.Printf("failed to save audit log for %s: %v", action, err)
	}
}

func (s *registryService) requireOwner(ctx context.Context, principalID int64) error {
	ok, err := s.repo.IsOwner(ctx, principalID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: owner tier required", domain.ErrPermissionDenied)
	}
	return nil
}
