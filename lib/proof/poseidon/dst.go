package poseidondst

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/triplewz/poseidon"
)

// DST provides the domain separation tag mixed into the first poseidon state element.
type DST interface {
	DST() *fr.Element
}

// MerkleTreeDST is the neptune merkle tree tag, 2^arity - 1.
type MerkleTreeDST[A Arity] struct{}

func (m MerkleTreeDST[A]) DST() *fr.Element {
	arity := (*new(A)).Arity()
	tag := twoToArityMinus1(uint64(arity))
	return &tag
}

type MerkleTree2 = DSTElement[MerkleTreeDST[Arity2]]

// DSTElement wraps fr.Element so the poseidon package picks up our domain tag.
//
// poseidon.GenPoseidonConstants seeds the capacity element with SetString("3");
// DSTElement intercepts that call and substitutes D's tag.
type DSTElement[D DST] struct {
	fr.Element
}

func (c *DSTElement[D]) SetUint64(u uint64) *DSTElement[D] {
	c.Element.SetUint64(u)
	return c
}

func (c *DSTElement[D]) SetBigInt(b *big.Int) *DSTElement[D] {
	c.Element.SetBigInt(b)
	return c
}

func (c *DSTElement[D]) SetBytes(bytes []byte) *DSTElement[D] {
	c.Element.SetBytes(bytes)
	return c
}

func (c *DSTElement[D]) BigInt(b *big.Int) *big.Int {
	return c.Element.BigInt(b)
}

func (c *DSTElement[D]) SetOne() *DSTElement[D] {
	c.Element.SetOne()
	return c
}

func (c *DSTElement[D]) SetZero() *DSTElement[D] {
	c.Element.SetZero()
	return c
}

func (c *DSTElement[D]) Inverse(e *DSTElement[D]) *DSTElement[D] {
	c.Element.Inverse(&e.Element)
	return c
}

func (c *DSTElement[D]) Set(e *DSTElement[D]) *DSTElement[D] {
	c.Element.Set(&e.Element)
	return c
}

func (c *DSTElement[D]) Square(e *DSTElement[D]) *DSTElement[D] {
	c.Element.Square(&e.Element)
	return c
}

func (c *DSTElement[D]) Mul(a, b *DSTElement[D]) *DSTElement[D] {
	c.Element.Mul(&a.Element, &b.Element)
	return c
}

func (c *DSTElement[D]) Add(a, b *DSTElement[D]) *DSTElement[D] {
	c.Element.Add(&a.Element, &b.Element)
	return c
}

func (c *DSTElement[D]) Sub(a, b *DSTElement[D]) *DSTElement[D] {
	c.Element.Sub(&a.Element, &b.Element)
	return c
}

func (c *DSTElement[D]) Cmp(x *DSTElement[D]) int {
	return c.Element.Cmp(&x.Element)
}

func (c *DSTElement[D]) New() *DSTElement[D] {
	return new(DSTElement[D])
}

func (c *DSTElement[D]) SetString(s string) (*DSTElement[D], error) {
	if s == "3" {
		c.Element = *(*new(D)).DST()
		return c, nil
	}

	if _, err := c.Element.SetString(s); err != nil {
		return nil, err
	}
	return c, nil
}

func twoToArityMinus1(arity uint64) fr.Element {
	out := fr.NewElement(2)
	out.Exp(out, new(big.Int).SetUint64(arity))

	var one fr.Element
	one.SetOne()
	out.Sub(&out, &one)
	return out
}

var _ poseidon.Element[*MerkleTree2] = &MerkleTree2{}
