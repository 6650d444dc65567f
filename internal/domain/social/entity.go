// Package social содержит доменную модель графа подписок и социальной
// статистики: направленные рёбра "кто на кого подписан", счётчики
// подписчиков и репутацию пользователя.
package social

import (
	"encoding/hex"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/alem-hub/community-rankings/internal/domain/shared"
	"github.com/alem-hub/community-rankings/internal/domain/store"
)

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrSelfFollow - нельзя подписаться на самого себя.
	ErrSelfFollow = shared.NewDomainError("social", "Follow", shared.ErrValidation, "cannot follow yourself")

	// ErrInvalidUserID - невалидный ID пользователя.
	ErrInvalidUserID = shared.NewDomainError("social", "Validate", shared.ErrValidation, "invalid user id")

	// ErrAlreadyFollowing - подписка уже существует.
	ErrAlreadyFollowing = shared.NewDomainError("social", "Follow", shared.ErrConflict, "already following this user")

	// ErrNotFollowing - подписки нет.
	ErrNotFollowing = shared.NewDomainError("social", "Unfollow", shared.ErrConflict, "not following this user")

	// ErrUserNotFound - пользователь, на которого подписываются, не существует.
	ErrUserNotFound = shared.NewDomainError("social", "Follow", shared.ErrNotFound, "user not found")
)

// ══════════════════════════════════════════════════════════════════════════════
// DOCUMENT FIELDS
// ══════════════════════════════════════════════════════════════════════════════

const (
	FieldFollowerID           = "followerId"
	FieldFollowingID          = "followingId"
	FieldFollowingDisplayName = "followingDisplayName"
	FieldFollowingAvatar      = "followingAvatar"
	FieldCreatedAt            = "createdAt"

	FieldUserID                 = "userId"
	FieldFollowersCount         = "followersCount"
	FieldFollowingCount         = "followingCount"
	FieldLeaderboardAppearances = "leaderboardAppearances"
	FieldTopRanks               = "topRanks"
	FieldReputationScore        = "reputationScore"
	FieldReputationComputedAt   = "reputationComputedAt"
	FieldLastUpdated            = "lastUpdated"
)

// NotificationNewFollower - тип уведомления о новом подписчике.
const NotificationNewFollower = "new_follower"

// ══════════════════════════════════════════════════════════════════════════════
// ENTITY: FOLLOW EDGE
// ══════════════════════════════════════════════════════════════════════════════

// FollowEdge - направленная подписка FollowerID -> FollowingID.
// На пару существует не более одного ребра: его ID детерминирован (EdgeID).
type FollowEdge struct {
	// FollowerID - кто подписался.
	FollowerID string

	// FollowingID - на кого подписались.
	FollowingID string

	// FollowingDisplayName - снимок имени на момент подписки.
	FollowingDisplayName string

	// FollowingAvatar - снимок аватара на момент подписки.
	FollowingAvatar string

	// CreatedAt - время подписки.
	CreatedAt time.Time

	// DeletedAt - всегда nil: отписка удаляет ребро физически.
	DeletedAt *time.Time
}

// EdgeID возвращает детерминированный ID ребра для упорядоченной пары.
func EdgeID(followerID, followingID string) string {
	h, _ := blake2b.New(16, nil)
	h.Write([]byte(followerID))
	h.Write([]byte{0})
	h.Write([]byte(followingID))
	return hex.EncodeToString(h.Sum(nil))
}

// NewFollowEdge создаёт ребро с валидацией.
func NewFollowEdge(followerID, followingID string, target shared.UserProfile, createdAt time.Time) (*FollowEdge, error) {
	if err := ValidatePair(followerID, followingID); err != nil {
		return nil, err
	}
	return &FollowEdge{
		FollowerID:           followerID,
		FollowingID:          followingID,
		FollowingDisplayName: target.DisplayName,
		FollowingAvatar:      target.AvatarRef,
		CreatedAt:            createdAt.UTC(),
	}, nil
}

// ValidatePair проверяет ID и запрет подписки на себя.
func ValidatePair(followerID, followingID string) error {
	if err := shared.ValidateUserIDs(followerID, followingID); err != nil {
		return ErrInvalidUserID
	}
	if followerID == followingID {
		return ErrSelfFollow
	}
	return nil
}

// ID возвращает ID документа ребра.
func (e *FollowEdge) ID() string {
	return EdgeID(e.FollowerID, e.FollowingID)
}

// Document сериализует ребро в документ хранилища.
func (e *FollowEdge) Document() map[string]any {
	return map[string]any{
		FieldFollowerID:           e.FollowerID,
		FieldFollowingID:          e.FollowingID,
		FieldFollowingDisplayName: e.FollowingDisplayName,
		FieldFollowingAvatar:      e.FollowingAvatar,
		FieldCreatedAt:            e.CreatedAt,
	}
}

// EdgeFromDocument восстанавливает ребро из документа.
func EdgeFromDocument(doc store.Document) *FollowEdge {
	createdAt, _ := store.Time(doc.Data, FieldCreatedAt)
	return &FollowEdge{
		FollowerID:           store.String(doc.Data, FieldFollowerID),
		FollowingID:          store.String(doc.Data, FieldFollowingID),
		FollowingDisplayName: store.String(doc.Data, FieldFollowingDisplayName),
		FollowingAvatar:      store.String(doc.Data, FieldFollowingAvatar),
		CreatedAt:            createdAt,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTITY: SOCIAL STATS
// ══════════════════════════════════════════════════════════════════════════════

// Stats - социальная статистика пользователя. Создаётся лениво
// и никогда не удаляется. Счётчики подписок - лишь подсказка: источник
// истины - подсчёт живых рёбер, и при каждом пересчёте они перезаписываются.
type Stats struct {
	UserID string `json:"userId"`

	FollowersCount int `json:"followersCount"`
	FollowingCount int `json:"followingCount"`

	// LeaderboardAppearances - сколько раз пользователь видел своё место.
	LeaderboardAppearances int `json:"leaderboardAppearances"`

	// TopRanks - лучшее место по каждой категории.
	TopRanks map[string]int `json:"topRanks"`

	// ReputationScore - композитная оценка 0..100.
	ReputationScore      int        `json:"reputationScore"`
	ReputationComputedAt *time.Time `json:"reputationComputedAt,omitempty"`

	LastUpdated time.Time `json:"lastUpdated"`
}

// NewStats создаёт пустую статистику.
func NewStats(userID string, now time.Time) *Stats {
	return &Stats{
		UserID:      userID,
		TopRanks:    make(map[string]int),
		LastUpdated: now.UTC(),
	}
}

// RecordRank учитывает появление в рейтинге и обновляет лучшее место.
// Возвращает true, если место - новый рекорд.
func (s *Stats) RecordRank(category string, rank int) bool {
	s.LeaderboardAppearances++
	if s.TopRanks == nil {
		s.TopRanks = make(map[string]int)
	}
	best, ok := s.TopRanks[category]
	if !ok || rank < best {
		s.TopRanks[category] = rank
		return true
	}
	return false
}

// Reconcile перезаписывает счётчики значениями, посчитанными по рёбрам.
// Возвращает true, если кешированные значения расходились.
func (s *Stats) Reconcile(followers, following int) bool {
	drift := s.FollowersCount != followers || s.FollowingCount != following
	s.FollowersCount = followers
	s.FollowingCount = following
	return drift
}

// Document сериализует статистику.
func (s *Stats) Document() map[string]any {
	topRanks := make(map[string]any, len(s.TopRanks))
	for k, v := range s.TopRanks {
		topRanks[k] = v
	}
	doc := map[string]any{
		FieldUserID:                 s.UserID,
		FieldFollowersCount:         s.FollowersCount,
		FieldFollowingCount:         s.FollowingCount,
		FieldLeaderboardAppearances: s.LeaderboardAppearances,
		FieldTopRanks:               topRanks,
		FieldReputationScore:        s.ReputationScore,
		FieldLastUpdated:            s.LastUpdated,
	}
	if s.ReputationComputedAt != nil {
		doc[FieldReputationComputedAt] = *s.ReputationComputedAt
	}
	return doc
}

// StatsFromDocument восстанавливает статистику из документа.
func StatsFromDocument(doc store.Document) *Stats {
	s := &Stats{
		UserID:                 store.String(doc.Data, FieldUserID),
		FollowersCount:         store.Int(doc.Data, FieldFollowersCount),
		FollowingCount:         store.Int(doc.Data, FieldFollowingCount),
		LeaderboardAppearances: store.Int(doc.Data, FieldLeaderboardAppearances),
		TopRanks:               store.IntMap(doc.Data, FieldTopRanks),
		ReputationScore:        store.Int(doc.Data, FieldReputationScore),
	}
	if s.UserID == "" {
		s.UserID = doc.ID
	}
	if t, ok := store.Time(doc.Data, FieldReputationComputedAt); ok {
		s.ReputationComputedAt = &t
	}
	if t, ok := store.Time(doc.Data, FieldLastUpdated); ok {
		s.LastUpdated = t
	}
	return s
}
