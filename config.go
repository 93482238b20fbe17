package claimgate

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Bounds for the claim expiry window. A window shorter than a minute makes
// claims unusable in practice; one longer than a day widens the blast radius
// of a leaked signer key. The cooldown is bounded at one day: the daily
// quota already resets on that cadence, and an unbounded cooldown could be
// set far enough out to overflow the next-claim time.
const (
	MinExpiryWindowSeconds = 60
	MaxExpiryWindowSeconds = 86400
	MaxCooldownSeconds     = 86400
)

// Config holds the parameters read by every claim evaluation. Changes take
// effect immediately for the next evaluated claim; there is no versioning.
type Config struct {
	AuthorizedSigner    common.Address
	ReserveAddress      common.Address
	MaxSingleClaim      *big.Int
	MaxDailyPerActor    *big.Int
	CooldownSeconds     uint64
	ExpiryWindowSeconds uint64

	// Domain binding: both are mixed into every claim digest so a signature
	// for one deployment cannot be replayed against another.
	ChainID         *big.Int
	VerifierAddress common.Address
}

// ConfigStore holds the live configuration and the global pause flag.
// Mutations go through the named administrative operations only.
type ConfigStore struct {
	mu     sync.RWMutex
	cfg    Config
	paused bool
}

// NewConfigStore creates a config store with the given initial configuration.
// Returns an error if the initial configuration fails the same validation the
// administrative operations enforce.
func NewConfigStore(cfg Config) (*ConfigStore, error) {
	if cfg.AuthorizedSigner == (common.Address{}) {
		return nil, NewClaimError(ErrCodeInvalidAdminParameter, "authorized signer must not be the zero address", nil)
	}
	if cfg.ReserveAddress == (common.Address{}) {
		return nil, NewClaimError(ErrCodeInvalidAdminParameter, "reserve address must not be the zero address", nil)
	}
	if err := validateLimits(cfg.MaxSingleClaim, cfg.MaxDailyPerActor, cfg.CooldownSeconds); err != nil {
		return nil, err
	}
	if err := validateExpiryWindow(cfg.ExpiryWindowSeconds); err != nil {
		return nil, err
	}
	if cfg.ChainID == nil || cfg.ChainID.Sign() <= 0 {
		return nil, NewClaimError(ErrCodeInvalidAdminParameter, "chain id must be positive", nil)
	}
	store := &ConfigStore{}
	store.cfg = cfg
	store.cfg.MaxSingleClaim = new(big.Int).Set(cfg.MaxSingleClaim)
	store.cfg.MaxDailyPerActor = new(big.Int).Set(cfg.MaxDailyPerActor)
	store.cfg.ChainID = new(big.Int).Set(cfg.ChainID)
	return store, nil
}

// Snapshot returns a copy of the current configuration.
func (s *ConfigStore) Snapshot() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg := s.cfg
	cfg.MaxSingleClaim = new(big.Int).Set(s.cfg.MaxSingleClaim)
	cfg.MaxDailyPerActor = new(big.Int).Set(s.cfg.MaxDailyPerActor)
	cfg.ChainID = new(big.Int).Set(s.cfg.ChainID)
	return cfg
}

// Paused reports whether the pipeline is accepting claims.
func (s *ConfigStore) Paused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}

// Pause rejects all new claims until Unpause is called. Already-finalized
// claims are unaffected.
func (s *ConfigStore) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

// Unpause resumes claim processing.
func (s *ConfigStore) Unpause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
}

// SetAuthorizedSigner replaces the off-chain signer whose signatures the
// verifier accepts.
func (s *ConfigStore) SetAuthorizedSigner(addr common.Address) error {
	if addr == (common.Address{}) {
		return NewClaimError(ErrCodeInvalidAdminParameter, "authorized signer must not be the zero address", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.AuthorizedSigner = addr
	return nil
}

// SetReserveAddress replaces the account reward transfers are drawn from.
func (s *ConfigStore) SetReserveAddress(addr common.Address) error {
	if addr == (common.Address{}) {
		return NewClaimError(ErrCodeInvalidAdminParameter, "reserve address must not be the zero address", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.ReserveAddress = addr
	return nil
}

// SetLimits replaces the per-claim cap, the per-actor daily cap, and the
// cooldown between claims. A zero cooldown disables the cooldown check.
func (s *ConfigStore) SetLimits(maxSingle, maxDaily *big.Int, cooldownSeconds uint64) error {
	if err := validateLimits(maxSingle, maxDaily, cooldownSeconds); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.MaxSingleClaim = new(big.Int).Set(maxSingle)
	s.cfg.MaxDailyPerActor = new(big.Int).Set(maxDaily)
	s.cfg.CooldownSeconds = cooldownSeconds
	return nil
}

// SetExpiryWindow replaces the maximum allowed distance between now and a
// claim's expiry.
func (s *ConfigStore) SetExpiryWindow(seconds uint64) error {
	if err := validateExpiryWindow(seconds); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.ExpiryWindowSeconds = seconds
	return nil
}

func validateLimits(maxSingle, maxDaily *big.Int, cooldownSeconds uint64) error {
	if maxSingle == nil || maxSingle.Sign() <= 0 {
		return NewClaimError(ErrCodeInvalidAdminParameter, "max single claim must be positive", nil)
	}
	if maxDaily == nil || maxDaily.Sign() <= 0 {
		return NewClaimError(ErrCodeInvalidAdminParameter, "max daily per actor must be positive", nil)
	}
	if maxDaily.Cmp(maxSingle) < 0 {
		return NewClaimError(ErrCodeInvalidAdminParameter, "max daily per actor must not be below max single claim", nil)
	}
	if cooldownSeconds > MaxCooldownSeconds {
		return NewClaimError(ErrCodeInvalidAdminParameter, "cooldown exceeds the maximum", map[string]interface{}{
			"max": MaxCooldownSeconds,
		})
	}
	return nil
}

func validateExpiryWindow(seconds uint64) error {
	if seconds < MinExpiryWindowSeconds || seconds > MaxExpiryWindowSeconds {
		return NewClaimError(ErrCodeInvalidAdminParameter, "expiry window out of range", map[string]interface{}{
			"min": MinExpiryWindowSeconds,
			"max": MaxExpiryWindowSeconds,
		})
	}
	return nil
}

// AdminGuard gates the administrative entry points. Access control lives
// outside the core pipeline; implementations decide who counts as an admin.
type AdminGuard interface {
	IsAdmin(addr common.Address) bool
}

// StaticAdminGuard is an AdminGuard backed by a fixed allow-list.
type StaticAdminGuard struct {
	mu     sync.RWMutex
	admins map[common.Address]bool
}

// NewStaticAdminGuard creates a guard allowing the given addresses.
func NewStaticAdminGuard(addrs ...common.Address) *StaticAdminGuard {
	g := &StaticAdminGuard{admins: make(map[common.Address]bool)}
	for _, a := range addrs {
		g.admins[a] = true
	}
	return g
}

// IsAdmin reports whether the address is on the allow-list.
func (g *StaticAdminGuard) IsAdmin(addr common.Address) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.admins[addr]
}

// Grant adds an address to the allow-list.
func (g *StaticAdminGuard) Grant(addr common.Address) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.admins[addr] = true
}

// Revoke removes an address from the allow-list.
func (g *StaticAdminGuard) Revoke(addr common.Address) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.admins, addr)
}
