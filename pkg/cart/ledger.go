// Package cart implements the shopping cart ledger.
//
// Every operation takes a ledger value and returns a new one; inputs are
// never modified. Identity is by book id, never by pointer.
package cart

import "cherrybook/pkg/domain"

// Ledger is the ordered list of cart lines, at most one per book id.
type Ledger []domain.CartLine

// Add increments the line for book, or appends a new line with quantity 1.
func Add(l Ledger, book domain.Book) Ledger {
	out := clone(l)
	for i := range out {
		if out[i].ID == book.ID {
			out[i].Quantity++
			return out
		}
	}
	return append(out, domain.CartLine{Book: book.Clone(), Quantity: 1})
}

// Remove deletes the line for bookID. Unknown ids are a no-op.
func Remove(l Ledger, bookID string) Ledger {
	out := make(Ledger, 0, len(l))
	for _, line := range l {
		if line.ID == bookID {
			continue
		}
		out = append(out, cloneLine(line))
	}
	return out
}

// AdjustQuantity adds delta to the line's quantity, flooring at 1.
// Unknown ids are a no-op.
func AdjustQuantity(l Ledger, bookID string, delta int) Ledger {
	out := clone(l)
	for i := range out {
		if out[i].ID == bookID {
			out[i].Quantity = max(1, out[i].Quantity+delta)
		}
	}
	return out
}

// Subtotal sums price * quantity over all lines.
func Subtotal(l Ledger) float64 {
	var total float64
	for _, line := range l {
		total += line.LineTotal()
	}
	return total
}

// ItemCount sums quantities over all lines.
func ItemCount(l Ledger) int {
	n := 0
	for _, line := range l {
		n += line.Quantity
	}
	return n
}

// Clear returns an empty ledger.
func Clear(Ledger) Ledger {
	return Ledger{}
}

// Find returns the line for bookID.
func Find(l Ledger, bookID string) (domain.CartLine, bool) {
	for _, line := range l {
		if line.ID == bookID {
			return cloneLine(line), true
		}
	}
	return domain.CartLine{}, false
}

// Copy returns a deep copy of l. A nil ledger copies to an empty one.
func Copy(l Ledger) Ledger {
	return clone(l)
}

func clone(l Ledger) Ledger {
	out := make(Ledger, len(l), len(l)+1)
	for i, line := range l {
		out[i] = cloneLine(line)
	}
	return out
}

func cloneLine(line domain.CartLine) domain.CartLine {
	line.Book = line.Book.Clone()
	return line
}
