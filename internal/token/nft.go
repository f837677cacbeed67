package token

import (
	"fmt"

	"nft-escrow-market/internal/domain"
	"nft-escrow-market/internal/ledger"
	"nft-escrow-market/internal/pubkey"
)

// MintNFT creates a unique asset: a zero-decimal mint whose single unit is
// held in owner's associated account, with the mint authority revoked so no
// further units can exist. Declared accounts: payer, mint, and the
// associated account of (owner, mint).
func MintNFT(tx *ledger.Tx, payer, mint pubkey.Signer, owner pubkey.PublicKey) (pubkey.PublicKey, error) {
	if err := InitializeMint(tx, payer, mint, 0, payer.PublicKey()); err != nil {
		return pubkey.Zero, err
	}
	ata, err := CreateAssociatedAccount(tx, payer, owner, mint.PublicKey())
	if err != nil {
		return pubkey.Zero, err
	}
	if err := MintTo(tx, mint.PublicKey(), ata, payer, 1); err != nil {
		return pubkey.Zero, fmt.Errorf("mint unique unit: %w", err)
	}
	if err := SetMintAuthority(tx, mint.PublicKey(), payer, nil); err != nil {
		return pubkey.Zero, fmt.Errorf("revoke mint authority: %w", err)
	}
	return ata, nil
}

// ReadAccount decodes committed account state as a token account.
func ReadAccount(raw *domain.Account) (*Account, error) {
	if raw.Owner != ProgramID {
		return nil, fmt.Errorf("%w: %s not owned by token program", ErrInvalidAccountData, raw.Address)
	}
	return DecodeAccount(raw.Data)
}

// ReadMint decodes committed account state as a mint.
func ReadMint(raw *domain.Account) (*Mint, error) {
	if raw.Owner != ProgramID {
		return nil, fmt.Errorf("%w: %s not owned by token program", ErrInvalidAccountData, raw.Address)
	}
	return DecodeMint(raw.Data)
}
