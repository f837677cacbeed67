package token

import (
	"encoding/binary"
	"fmt"

	"nft-escrow-market/internal/pubkey"
)

// Packed sizes of token program records.
const (
	MintSize    = 82
	AccountSize = 165
)

// AccountState is the lifecycle state of a token account.
type AccountState uint8

const (
	StateUninitialized AccountState = iota
	StateInitialized
	StateFrozen
)

// Mint describes a token type.
type Mint struct {
	MintAuthority   *pubkey.PublicKey // nil once supply is fixed
	Supply          uint64
	Decimals        uint8
	IsInitialized   bool
	FreezeAuthority *pubkey.PublicKey
}

// Account holds units of one mint for one owner.
type Account struct {
	Mint            pubkey.PublicKey
	Owner           pubkey.PublicKey
	Amount          uint64
	Delegate        *pubkey.PublicKey
	State           AccountState
	IsNative        *uint64
	DelegatedAmount uint64
	CloseAuthority  *pubkey.PublicKey
}

// DecodeMint unpacks an 82-byte mint record.
func DecodeMint(data []byte) (*Mint, error) {
	if len(data) != MintSize {
		return nil, fmt.Errorf("%w: mint is %d bytes", ErrInvalidAccountData, len(data))
	}
	r := reader{buf: data}
	m := &Mint{
		MintAuthority: r.optionKey(),
		Supply:        r.u64(),
		Decimals:      r.u8(),
	}
	m.IsInitialized = r.u8() == 1
	m.FreezeAuthority = r.optionKey()
	return m, nil
}

// Encode packs m into its 82-byte form.
func (m *Mint) Encode() []byte {
	w := writer{buf: make([]byte, 0, MintSize)}
	w.optionKey(m.MintAuthority)
	w.u64(m.Supply)
	w.u8(m.Decimals)
	w.bool(m.IsInitialized)
	w.optionKey(m.FreezeAuthority)
	return w.buf
}

// DecodeAccount unpacks a 165-byte token account record.
func DecodeAccount(data []byte) (*Account, error) {
	if len(data) != AccountSize {
		return nil, fmt.Errorf("%w: token account is %d bytes", ErrInvalidAccountData, len(data))
	}
	r := reader{buf: data}
	a := &Account{
		Mint:     r.key(),
		Owner:    r.key(),
		Amount:   r.u64(),
		Delegate: r.optionKey(),
		State:    AccountState(r.u8()),
	}
	if r.u32() == 1 {
		v := r.u64()
		a.IsNative = &v
	} else {
		r.u64()
	}
	a.DelegatedAmount = r.u64()
	a.CloseAuthority = r.optionKey()
	return a, nil
}

// Encode packs a into its 165-byte form.
func (a *Account) Encode() []byte {
	w := writer{buf: make([]byte, 0, AccountSize)}
	w.key(a.Mint)
	w.key(a.Owner)
	w.u64(a.Amount)
	w.optionKey(a.Delegate)
	w.u8(uint8(a.State))
	if a.IsNative != nil {
		w.u32(1)
		w.u64(*a.IsNative)
	} else {
		w.u32(0)
		w.u64(0)
	}
	w.u64(a.DelegatedAmount)
	w.optionKey(a.CloseAuthority)
	return w.buf
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) u8() uint8 {
	v := r.buf[r.off]
	r.off++
	return v
}

func (r *reader) u32() uint32 {
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v
}

func (r *reader) u64() uint64 {
	v := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v
}

func (r *reader) key() pubkey.PublicKey {
	var k pubkey.PublicKey
	copy(k[:], r.buf[r.off:])
	r.off += pubkey.Length
	return k
}

// optionKey reads a COption<Pubkey>: u32 tag followed by 32 bytes.
func (r *reader) optionKey() *pubkey.PublicKey {
	tag := r.u32()
	k := r.key()
	if tag == 0 {
		return nil
	}
	return &k
}

type writer struct {
	buf []byte
}

func (w *writer) u8(v uint8) { w.buf = append(w.buf, v) }

func (w *writer) bool(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

func (w *writer) u32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }

func (w *writer) u64(v uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }

func (w *writer) key(k pubkey.PublicKey) { w.buf = append(w.buf, k[:]...) }

func (w *writer) optionKey(k *pubkey.PublicKey) {
	if k == nil {
		w.u32(0)
		w.key(pubkey.Zero)
		return
	}
	w.u32(1)
	w.key(*k)
}
