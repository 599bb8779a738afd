package outcome

import (
	"errors"
	"fmt"
	"math/big"
)

var ErrInvalidRange = errors.New("invalid range")

var six = big.NewInt(6)

const (
	WinnerA = "A"
	WinnerB = "B"
)

// DeriveRange mapeia o valor do beacon para o intervalo [min, max].
// Fórmula idêntica à do contrato: outcome = (value % (max - min + 1)) + min.
// Aritmética uint256 via big.Int; nada de float, nada de overflow com sinal.
func DeriveRange(value *big.Int, min, max int) (int, error) {
	if max < min {
		return 0, fmt.Errorf("%w: [%d,%d]", ErrInvalidRange, min, max)
	}
	size := big.NewInt(int64(max-min) + 1)
	var m big.Int
	m.Mod(value, size)
	return int(m.Int64()) + min, nil
}

// TwoPlayerResult é o resultado determinístico de um jogo de dados entre dois
// participantes derivado de um único valor do beacon.
type TwoPlayerResult struct {
	RollA   int
	RollB   int
	Winner  string // WinnerA | WinnerB
	Message string
}

// DeriveTwoPlayer deriva os dois dados a partir do mesmo valor do beacon.
// O roll do jogador B usa o valor deslocado 8 bits pra descorrelacionar os
// dois sorteios. Empate vai para o jogador A — convenção fixa, reproduzida
// pelo contrato on-chain, então não pode mudar.
func DeriveTwoPlayer(value *big.Int) TwoPlayerResult {
	var a, b big.Int
	a.Mod(value, six)
	b.Rsh(value, 8)
	b.Mod(&b, six)

	res := TwoPlayerResult{
		RollA: int(a.Int64()) + 1,
		RollB: int(b.Int64()) + 1,
	}

	switch {
	case res.RollA > res.RollB:
		res.Winner = WinnerA
		res.Message = fmt.Sprintf("player A wins with %d vs %d", res.RollA, res.RollB)
	case res.RollB > res.RollA:
		res.Winner = WinnerB
		res.Message = fmt.Sprintf("player B wins with %d vs %d", res.RollB, res.RollA)
	default:
		res.Winner = WinnerA
		res.Message = fmt.Sprintf("tie at %d, player A wins on tie", res.RollA)
	}

	return res
}
