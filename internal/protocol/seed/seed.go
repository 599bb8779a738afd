package seed

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

var (
	ErrDuplicateSlot = errors.New("commitment already exists for slot")
	ErrUnknownSlot   = errors.New("no seed stored for slot")
)

// Commitment guarda o seed privado de um slot e o hash público publicado no
// momento da criação. O seed só sai daqui via RevealSeed.
type Commitment struct {
	SlotID     string
	Seed       []byte // 32 bytes, privado até o reveal
	Commitment string // sha256(seed) em hex, público
	CreatedAt  time.Time
}

// Store persiste commitments. Um slot aceita exatamente um commitment;
// Insert com slot repetido devolve ErrDuplicateSlot sem alterar estado.
type Store interface {
	Insert(ctx context.Context, c Commitment) error
	Get(ctx context.Context, slotID string) (*Commitment, error)
}

// Manager implementa o commit-reveal: gera seed, publica o hash e permite
// revelar e verificar depois que a randomness pública sai.
type Manager struct {
	store Store
}

func NewManager(s Store) *Manager { return &Manager{store: s} }

// CreateCommitment gera um seed aleatório de 32 bytes pro slot e retorna o
// hash de compromisso. Falha com ErrDuplicateSlot se o slot já tem seed —
// commitment é one-shot, sobrescrever silenciosamente quebraria o protocolo.
func (m *Manager) CreateCommitment(ctx context.Context, slotID string) (string, error) {
	if slotID == "" {
		return "", fmt.Errorf("slot id required")
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate seed: %w", err)
	}
	sum := sha256.Sum256(raw)

	c := Commitment{
		SlotID:     slotID,
		Seed:       raw,
		Commitment: hex.EncodeToString(sum[:]),
		CreatedAt:  time.Now(),
	}
	if err := m.store.Insert(ctx, c); err != nil {
		return "", err
	}
	return c.Commitment, nil
}

// RevealSeed retorna o seed em hex. Idempotente: pode ser chamado quantas
// vezes for preciso pra provar o seed a múltiplos verificadores.
func (m *Manager) RevealSeed(ctx context.Context, slotID string) (string, error) {
	c, err := m.store.Get(ctx, slotID)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(c.Seed), nil
}

// VerifyCommitment recalcula sha256(seedHex) e compara com o commitment
// armazenado. É uma consulta: slot desconhecido ou hex inválido retornam
// false, nunca erro.
func (m *Manager) VerifyCommitment(ctx context.Context, slotID, seedHex string) bool {
	c, err := m.store.Get(ctx, slotID)
	if err != nil {
		return false
	}
	raw, err := hex.DecodeString(seedHex)
	if err != nil {
		return false
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]) == c.Commitment
}
