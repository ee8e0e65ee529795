package server

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/frequent-batch-auction/internal/auction"
)

// Op is the command verb on the wire.
type Op string

const (
	OpAdd    Op = "ADD"
	OpCancel Op = "CANCEL"
)

// Command is one parsed order-entry line.
type Command struct {
	Op    Op
	Side  auction.Side
	Price decimal.Decimal
	Qty   uint32
}

// ErrMalformedCommand wraps every parse failure. A malformed line is fatal
// for its connection: the handler logs it and drops the session.
var ErrMalformedCommand = errors.New("malformed command")

// ParseCommand parses one protocol line of the form
//
//	OP,SIDE,PRICE,QTY
//
// OP is ADD or CANCEL, SIDE is BUY or SELL, PRICE is a positive decimal
// rounded to 2 fractional digits, QTY is a positive 32-bit integer.
func ParseCommand(line string) (Command, error) {
	parts := strings.Split(strings.TrimSpace(line), ",")
	if len(parts) != 4 {
		return Command{}, fmt.Errorf("%w: expected 4 fields, got %d", ErrMalformedCommand, len(parts))
	}

	var cmd Command

	switch parts[0] {
	case "ADD":
		cmd.Op = OpAdd
	case "CANCEL":
		cmd.Op = OpCancel
	default:
		return Command{}, fmt.Errorf("%w: unknown op %q", ErrMalformedCommand, parts[0])
	}

	switch parts[1] {
	case "BUY":
		cmd.Side = auction.SideBuy
	case "SELL":
		cmd.Side = auction.SideSell
	default:
		return Command{}, fmt.Errorf("%w: unknown side %q", ErrMalformedCommand, parts[1])
	}

	price, err := decimal.NewFromString(parts[2])
	if err != nil {
		return Command{}, fmt.Errorf("%w: bad price %q", ErrMalformedCommand, parts[2])
	}
	if !price.IsPositive() {
		return Command{}, fmt.Errorf("%w: price %q not positive", ErrMalformedCommand, parts[2])
	}
	cmd.Price = price.Round(2)

	qty, err := strconv.ParseUint(parts[3], 10, 32)
	if err != nil || qty == 0 {
		return Command{}, fmt.Errorf("%w: bad quantity %q", ErrMalformedCommand, parts[3])
	}
	cmd.Qty = uint32(qty)

	return cmd, nil
}
