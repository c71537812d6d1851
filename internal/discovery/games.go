package discovery

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lalalune/babylon-sub000/internal/agent0"
	"github.com/lalalune/babylon-sub000/internal/metrics"
	"github.com/lalalune/babylon-sub000/internal/store"
	"github.com/lalalune/babylon-sub000/pkg/agentnet"
)

// GamePlatformType is the record type distinguishing whole platforms from
// individual trading agents.
const GamePlatformType = "game-platform"

// RegistrationKey is the KV key under which this process records its own
// platform registration, used as the fallback when the index has not
// caught up with a registration we just performed.
const RegistrationKey = "babylon.registration"

const DefaultMaxRetries = 3

// DefaultBabylonAliases are the names FindBabylon matches against.
var DefaultBabylonAliases = []string{"babylon"}

// MetadataResolver resolves a content pointer to a metadata blob.
// Satisfied by *ipfs.Resolver.
type MetadataResolver interface {
	Resolve(ctx context.Context, pointer string) (*agentnet.GameMetadata, error)
}

// GameFilters narrow a game discovery request. Type is applied client-side
// after metadata assembly.
type GameFilters struct {
	Type    string
	Markets []string
}

// registrationRecord is the persisted bookkeeping for our own platform
// registration.
type registrationRecord struct {
	TokenID uint64 `json:"tokenId"`
}

// GameDiscoveryService finds game-platform records on the Agent0 index,
// resilient to a slow-to-index network: bounded retries, endpoint
// reachability validation, and a local-persistence fallback.
type GameDiscoveryService struct {
	client    IndexClient
	resolver  MetadataResolver
	kv        store.KV
	validator *EndpointValidator
	aliases   []string
	logger    *logrus.Logger
	collector *metrics.Collector

	// sleep is swapped in tests to avoid real backoff waits.
	sleep func(time.Duration)
}

func NewGameDiscoveryService(client IndexClient, resolver MetadataResolver, kv store.KV, aliases []string, logger *logrus.Logger, collector *metrics.Collector) *GameDiscoveryService {
	if logger == nil {
		logger = logrus.New()
	}
	if len(aliases) == 0 {
		aliases = DefaultBabylonAliases
	}
	return &GameDiscoveryService{
		client:    client,
		resolver:  resolver,
		kv:        kv,
		validator: NewEndpointValidator(logger, collector),
		aliases:   aliases,
		logger:    logger,
		collector: collector,
		sleep:     time.Sleep,
	}
}

// DiscoverGames queries the index for platform-typed records and resolves
// each hit's metadata blob to fill in endpoints and capability flags. A
// summary field covers for any field the blob leaves empty (field-by-field
// fallback, not whole-record). Hits resolve sequentially; the service
// imposes no ordering across records, so callers may fan out themselves.
func (s *GameDiscoveryService) DiscoverGames(ctx context.Context, filters GameFilters) ([]agentnet.DiscoverableGame, error) {
	records, err := s.client.Query(ctx, agent0.QueryFilters{
		Type:    GamePlatformType,
		Markets: filters.Markets,
	})
	if err != nil {
		return nil, err
	}
	s.collector.IncDiscoveryQuery("games")

	games := make([]agentnet.DiscoverableGame, 0, len(records))
	for _, record := range records {
		game := s.assembleGame(ctx, record)
		if filters.Type != "" && game.Type != filters.Type {
			continue
		}
		games = append(games, game)
	}

	s.logger.Debugf("Discovered %d games", len(games))
	return games, nil
}

// GetGameByTokenID is the direct lookup path for an already-known token:
// no search, no retries. Absence is (nil, nil).
func (s *GameDiscoveryService) GetGameByTokenID(ctx context.Context, tokenID uint64) (*agentnet.DiscoverableGame, error) {
	record, err := s.client.GetAgentByTokenID(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, nil
	}
	game := s.assembleGame(ctx, *record)
	return &game, nil
}

// FindBabylon locates our own platform record with the default retry
// budget.
func (s *GameDiscoveryService) FindBabylon(ctx context.Context) (*agentnet.DiscoverableGame, error) {
	return s.FindBabylonWithRetries(ctx, DefaultMaxRetries)
}

// FindBabylonWithRetries runs the per-attempt state machine: search, alias
// match, endpoint validation, then the persisted-registration fallback that
// resolves our own token directly when the index has not indexed it into
// search results yet. Backoff is linear (1s * attempt) because the
// expected wait is "index catches up", a bounded short-horizon event.
// Exhausting the budget returns (nil, nil), not an error.
func (s *GameDiscoveryService) FindBabylonWithRetries(ctx context.Context, maxRetries int) (*agentnet.DiscoverableGame, error) {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	for attempt := 1; attempt <= maxRetries; attempt++ {
		s.logger.Debugf("Looking for Babylon platform (attempt %d/%d)", attempt, maxRetries)

		games, err := s.DiscoverGames(ctx, GameFilters{Type: GamePlatformType, Markets: []string{"prediction"}})
		if err != nil {
			s.logger.Warnf("Game discovery failed on attempt %d: %v", attempt, err)
		}

		if match := s.matchAlias(games); match != nil {
			if s.validator.Validate(ctx, *match) {
				s.logger.Infof("✅ Found Babylon platform: %s (token %d)", match.Name, match.TokenID)
				return match, nil
			}
			s.logger.Warnf("Babylon candidate %s failed endpoint validation", match.Name)
		}

		if game := s.resolveRegisteredToken(ctx); game != nil {
			s.logger.Infof("✅ Resolved Babylon from local registration record (token %d)", game.TokenID)
			return game, nil
		}

		if attempt < maxRetries {
			s.sleep(time.Duration(attempt) * time.Second)
		}
	}

	s.logger.Warnf("Babylon platform not found after %d attempts", maxRetries)
	return nil, nil
}

func (s *GameDiscoveryService) matchAlias(games []agentnet.DiscoverableGame) *agentnet.DiscoverableGame {
	for i := range games {
		name := strings.ToLower(games[i].Name)
		for _, alias := range s.aliases {
			if strings.Contains(name, strings.ToLower(alias)) {
				return &games[i]
			}
		}
	}
	return nil
}

// resolveRegisteredToken reads the persisted registration record and
// resolves that token directly, bypassing search. Handles the case where
// this process registered itself and the index has not caught up.
func (s *GameDiscoveryService) resolveRegisteredToken(ctx context.Context) *agentnet.DiscoverableGame {
	if s.kv == nil {
		return nil
	}
	raw, err := s.kv.Get(ctx, RegistrationKey)
	if err != nil {
		s.logger.Warnf("Failed to read registration record: %v", err)
		return nil
	}
	if raw == nil {
		return nil
	}

	var record registrationRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		s.logger.Warnf("Malformed registration record: %v", err)
		return nil
	}

	game, err := s.GetGameByTokenID(ctx, record.TokenID)
	if err != nil {
		s.logger.Warnf("Failed to resolve registered token %d: %v", record.TokenID, err)
		return nil
	}
	return game
}

// assembleGame merges the summary record with its resolved metadata blob.
// A failed blob fetch degrades to summary fields only.
func (s *GameDiscoveryService) assembleGame(ctx context.Context, record agentnet.ExternalAgentRecord) agentnet.DiscoverableGame {
	game := agentnet.DiscoverableGame{
		TokenID:         record.TokenID,
		Name:            record.Name,
		Type:            record.Type,
		MetadataPointer: record.MetadataPointer,
		Endpoints:       agentnet.GameEndpoints{API: record.Endpoint},
		Capabilities: agentnet.GameCapabilities{
			Markets:   record.Markets,
			Actions:   record.Actions,
			Protocols: record.Protocols,
		},
	}
	if record.TrustScore > 0 {
		game.Reputation = &agentnet.GameReputation{TrustScore: record.TrustScore}
	}

	if s.resolver == nil || record.MetadataPointer == "" {
		return game
	}
	metadata, err := s.resolver.Resolve(ctx, record.MetadataPointer)
	if err != nil {
		s.logger.Warnf("Metadata resolution failed for token %d, using summary fields: %v", record.TokenID, err)
		return game
	}

	if metadata.Name != "" {
		game.Name = metadata.Name
	}
	if metadata.Type != "" {
		game.Type = metadata.Type
	}
	if metadata.Endpoints.A2A != "" {
		game.Endpoints.A2A = metadata.Endpoints.A2A
	}
	if metadata.Endpoints.MCP != "" {
		game.Endpoints.MCP = metadata.Endpoints.MCP
	}
	if metadata.Endpoints.API != "" {
		game.Endpoints.API = metadata.Endpoints.API
	}
	if metadata.Endpoints.Docs != "" {
		game.Endpoints.Docs = metadata.Endpoints.Docs
	}
	if metadata.Endpoints.WebSocket != "" {
		game.Endpoints.WebSocket = metadata.Endpoints.WebSocket
	}
	if metadata.Capabilities != nil {
		if len(metadata.Capabilities.Markets) > 0 {
			game.Capabilities.Markets = metadata.Capabilities.Markets
		}
		if len(metadata.Capabilities.Actions) > 0 {
			game.Capabilities.Actions = metadata.Capabilities.Actions
		}
		if len(metadata.Capabilities.Protocols) > 0 {
			game.Capabilities.Protocols = metadata.Capabilities.Protocols
		}
		game.Capabilities.SocialFeatures = metadata.Capabilities.SocialFeatures
		game.Capabilities.Realtime = metadata.Capabilities.Realtime
	}

	return game
}
