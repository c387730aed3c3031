package poseidondst

// Arity selects the width of a poseidon merkle/column hash.
type Arity interface {
	Arity() int
}

type Arity2 struct{}
type Arity3 struct{}
type Arity4 struct{}
type Arity8 struct{}
type Arity11 struct{}

func (a Arity2) Arity() int  { return 2 }
func (a Arity3) Arity() int  { return 3 }
func (a Arity4) Arity() int  { return 4 }
func (a Arity8) Arity() int  { return 8 }
func (a Arity11) Arity() int { return 11 }

// SupportedArities lists the widths a column hash can be built with.
var SupportedArities = []int{2, 3, 4, 8, 11}

func IsSupportedArity(n int) bool {
	for _, a := range SupportedArities {
		if a == n {
			return true
		}
	}
	return false
}
