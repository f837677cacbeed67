package verify

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"nft-escrow-market/internal/pubkey"
)

// MetadataProgramID is the Metaplex Token Metadata program.
var MetadataProgramID = pubkey.MustParse("metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s")

// Metaplex account keys (first byte of account data).
const (
	KeyMasterEditionV1 = 2
	KeyMetadataV1      = 4
	KeyMasterEditionV2 = 6
)

var errShortData = errors.New("metadata: unexpected end of data")

// Creator is a verified or unverified creator entry.
type Creator struct {
	Address  pubkey.PublicKey
	Verified bool
	Share    uint8
}

// Collection links metadata to a collection mint.
type Collection struct {
	Verified bool
	Key      pubkey.PublicKey
}

// Metadata is the decoded Metaplex metadata account of a mint.
type Metadata struct {
	UpdateAuthority      pubkey.PublicKey
	Mint                 pubkey.PublicKey
	Name                 string
	Symbol               string
	URI                  string
	SellerFeeBasisPoints uint16
	Creators             []Creator
	PrimarySaleHappened  bool
	IsMutable            bool
	EditionNonce         *uint8
	TokenStandard        *uint8
	Collection           *Collection
}

// MetadataAddress returns the metadata account of mint.
// Seeds: ["metadata", metadata_program_id, mint].
func MetadataAddress(mint pubkey.PublicKey) (pubkey.PublicKey, error) {
	addr, _, err := pubkey.FindProgramAddress(
		[][]byte{[]byte("metadata"), MetadataProgramID[:], mint[:]},
		MetadataProgramID,
	)
	return addr, err
}

// MasterEditionAddress returns the master edition account of mint.
// Seeds: ["metadata", metadata_program_id, mint, "edition"].
func MasterEditionAddress(mint pubkey.PublicKey) (pubkey.PublicKey, error) {
	addr, _, err := pubkey.FindProgramAddress(
		[][]byte{[]byte("metadata"), MetadataProgramID[:], mint[:], []byte("edition")},
		MetadataProgramID,
	)
	return addr, err
}

// ParseMetadata decodes a borsh-encoded MetadataV1 account. Trailing fields
// after the collection are ignored.
func ParseMetadata(data []byte) (*Metadata, error) {
	d := decoder{buf: data}

	if key := d.u8(); key != KeyMetadataV1 {
		if d.err != nil {
			return nil, d.err
		}
		return nil, fmt.Errorf("metadata: unexpected account key %d", key)
	}

	m := &Metadata{
		UpdateAuthority: d.key(),
		Mint:            d.key(),
		Name:            d.str(),
		Symbol:          d.str(),
		URI:             d.str(),
	}
	m.SellerFeeBasisPoints = d.u16()

	if d.option() {
		n := d.u32()
		if d.err == nil && int(n)*34 > d.remaining() {
			return nil, errShortData
		}
		m.Creators = make([]Creator, 0, n)
		for i := uint32(0); i < n; i++ {
			m.Creators = append(m.Creators, Creator{
				Address:  d.key(),
				Verified: d.bool(),
				Share:    d.u8(),
			})
		}
	}

	m.PrimarySaleHappened = d.bool()
	m.IsMutable = d.bool()

	if d.option() {
		v := d.u8()
		m.EditionNonce = &v
	}

	// Older accounts end here
	if d.err == nil && d.remaining() == 0 {
		return m, nil
	}

	if d.option() {
		v := d.u8()
		m.TokenStandard = &v
	}
	if d.option() {
		m.Collection = &Collection{Verified: d.bool(), Key: d.key()}
	}

	if d.err != nil {
		return nil, d.err
	}
	return m, nil
}

type decoder struct {
	buf []byte
	off int
	err error
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if d.off+n > len(d.buf) {
		d.err = errShortData
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) remaining() int { return len(d.buf) - d.off }

func (d *decoder) u8() uint8 {
	b := d.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *decoder) bool() bool { return d.u8() != 0 }

func (d *decoder) option() bool { return d.u8() == 1 }

func (d *decoder) u16() uint16 {
	b := d.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (d *decoder) u32() uint32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (d *decoder) key() pubkey.PublicKey {
	var k pubkey.PublicKey
	copy(k[:], d.take(pubkey.Length))
	return k
}

// str reads a borsh string. Metaplex pads names with NUL bytes.
func (d *decoder) str() string {
	n := d.u32()
	if d.err == nil && int(n) > d.remaining() {
		d.err = errShortData
		return ""
	}
	return strings.TrimRight(string(d.take(int(n))), "\x00")
}
