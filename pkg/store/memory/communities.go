package memory

import (
	"context"
	"sort"

	"github.com/arborlabs/arbor/backend/pkg/common"
)

func (s *Store) ReplaceCommunities(ctx context.Context, ownerID string, communities []common.Community) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, community := range s.communities {
		if community.OwnerID == ownerID {
			delete(s.communities, id)
		}
	}
	for i := range communities {
		community := communities[i]
		if community.ID == "" {
			community.ID = newID()
			communities[i].ID = community.ID
		}
		community.OwnerID = ownerID
		cp := community
		s.communities[community.ID] = &cp
	}
	return nil
}

func (s *Store) TopCommunities(ctx context.Context, ownerID string, limit int) ([]common.Community, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]common.Community, 0)
	for _, community := range s.communities {
		if community.OwnerID == ownerID {
			out = append(out, *community)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Size != out[j].Size {
			return out[i].Size > out[j].Size
		}
		return out[i].Title < out[j].Title
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
