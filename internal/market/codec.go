package market

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"nft-escrow-market/internal/domain"
	"nft-escrow-market/internal/pubkey"
)

// Record sizes in bytes, discriminator included.
const (
	RegistrySize = 8 + 32 + 2 + 3 + 1 + 32 + 8 + 4 + MaxNameLength
	ListingSize  = 8 + 32 + 32 + 32 + 8 + 1 + 8
)

var (
	registryDiscriminator = discriminator("Registry")
	listingDiscriminator  = discriminator("Listing")
)

func discriminator(name string) []byte {
	sum := sha256.Sum256([]byte("account:" + name))
	return sum[:8]
}

// isRecord reports whether raw is owned by the market program and starts
// with disc.
func isRecord(raw *domain.Account, disc []byte) bool {
	return raw.Owner == ProgramID && bytes.HasPrefix(raw.Data, disc)
}

// encodeRegistry lays out:
// disc[8] admin[32] fee_bps[2] bumps[3] has_collection[1] collection[32]
// reward[8] name_len[4] name[32].
func encodeRegistry(r *domain.Registry) []byte {
	buf := make([]byte, 0, RegistrySize)
	buf = append(buf, registryDiscriminator...)
	buf = append(buf, r.Admin[:]...)
	buf = binary.LittleEndian.AppendUint16(buf, r.FeeBps)
	buf = append(buf, r.SelfBump, r.TreasuryBump, r.RewardAuthorityBump)
	if r.Collection != nil {
		buf = append(buf, 1)
		buf = append(buf, r.Collection[:]...)
	} else {
		buf = append(buf, 0)
		buf = append(buf, make([]byte, pubkey.Length)...)
	}
	buf = binary.LittleEndian.AppendUint64(buf, r.RewardPerPurchase)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(r.Name)))
	name := make([]byte, MaxNameLength)
	copy(name, r.Name)
	return append(buf, name...)
}

func decodeRegistry(address pubkey.PublicKey, data []byte) (*domain.Registry, error) {
	if len(data) != RegistrySize || string(data[:8]) != string(registryDiscriminator) {
		return nil, fmt.Errorf("%w: %s is not a registry", ErrInvalidAccount, address)
	}

	r := &domain.Registry{Address: address}
	off := 8
	copy(r.Admin[:], data[off:off+32])
	off += 32
	r.FeeBps = binary.LittleEndian.Uint16(data[off:])
	off += 2
	r.SelfBump, r.TreasuryBump, r.RewardAuthorityBump = data[off], data[off+1], data[off+2]
	off += 3
	if data[off] == 1 {
		var c pubkey.PublicKey
		copy(c[:], data[off+1:off+33])
		r.Collection = &c
	}
	off += 33
	r.RewardPerPurchase = binary.LittleEndian.Uint64(data[off:])
	off += 8
	n := int(binary.LittleEndian.Uint32(data[off:]))
	off += 4
	if n > MaxNameLength {
		return nil, fmt.Errorf("%w: registry name length %d", ErrInvalidAccount, n)
	}
	r.Name = string(data[off : off+n])
	return r, nil
}

// encodeListing lays out:
// disc[8] registry[32] maker[32] asset[32] price[8] bump[1] created_seq[8].
// The registry directly follows the discriminator so listings of one
// registry share a data prefix.
func encodeListing(l *domain.Listing) []byte {
	buf := make([]byte, 0, ListingSize)
	buf = append(buf, listingDiscriminator...)
	buf = append(buf, l.Registry[:]...)
	buf = append(buf, l.Maker[:]...)
	buf = append(buf, l.Asset[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, l.Price)
	buf = append(buf, l.Bump)
	return binary.LittleEndian.AppendUint64(buf, l.CreatedSeq)
}

func decodeListing(address pubkey.PublicKey, data []byte) (*domain.Listing, error) {
	if len(data) != ListingSize || string(data[:8]) != string(listingDiscriminator) {
		return nil, fmt.Errorf("%w: %s is not a listing", ErrInvalidAccount, address)
	}

	l := &domain.Listing{Address: address}
	copy(l.Registry[:], data[8:40])
	copy(l.Maker[:], data[40:72])
	copy(l.Asset[:], data[72:104])
	l.Price = binary.LittleEndian.Uint64(data[104:112])
	l.Bump = data[112]
	l.CreatedSeq = binary.LittleEndian.Uint64(data[113:121])
	return l, nil
}

// listingPrefix selects the listings of registry by data prefix.
func listingPrefix(registry pubkey.PublicKey) []byte {
	prefix := make([]byte, 0, 8+pubkey.Length)
	prefix = append(prefix, listingDiscriminator...)
	return append(prefix, registry[:]...)
}
