package pubkey

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testProgram = MustParse("3rQUfjWdfmKMt26pzJKLPozPwkF92YeYaS2LGep6ERMu")

func TestFindProgramAddress_KnownVectors(t *testing.T) {
	tests := []struct {
		name     string
		seeds    func(t *testing.T) [][]byte
		wantAddr string
		wantBump uint8
	}{
		{
			name:     "marketplace test",
			seeds:    func(*testing.T) [][]byte { return [][]byte{[]byte("marketplace"), []byte("test")} },
			wantAddr: "9F3aYzEhL7mVofVb471K78HpxD6cGFyq8cKntFiPYWUC",
			wantBump: 253,
		},
		{
			name: "treasury of marketplace test",
			seeds: func(t *testing.T) [][]byte {
				reg := MustParse("9F3aYzEhL7mVofVb471K78HpxD6cGFyq8cKntFiPYWUC")
				return [][]byte{[]byte("treasury"), reg[:]}
			},
			wantAddr: "EjTjeMWXsPkE3Tb5sLbL7M7tnW66znjQuUXGs87VCUtT",
			wantBump: 255,
		},
		{
			name: "rewards of marketplace test",
			seeds: func(t *testing.T) [][]byte {
				reg := MustParse("9F3aYzEhL7mVofVb471K78HpxD6cGFyq8cKntFiPYWUC")
				return [][]byte{[]byte("rewards"), reg[:]}
			},
			wantAddr: "E6CuCpTbjPwgcbcEqQWLPpNHLzeugjq3navCtcF5Awp4",
			wantBump: 254,
		},
		{
			name:     "marketplace main",
			seeds:    func(*testing.T) [][]byte { return [][]byte{[]byte("marketplace"), []byte("main")} },
			wantAddr: "FTL94LkHEJ2LMZhdpq9YCM46aLi1tJ8dqAPPCVnNCgwy",
			wantBump: 255,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, bump, err := FindProgramAddress(tt.seeds(t), testProgram)
			require.NoError(t, err)
			assert.Equal(t, tt.wantAddr, addr.String())
			assert.Equal(t, tt.wantBump, bump)
			assert.False(t, IsOnCurve(addr[:]))
		})
	}
}

func TestFindProgramAddress_Determinism(t *testing.T) {
	seeds := [][]byte{[]byte("marketplace"), []byte("m0")}

	first, firstBump, err := FindProgramAddress(seeds, testProgram)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		addr, bump, err := FindProgramAddress(seeds, testProgram)
		require.NoError(t, err)
		assert.Equal(t, first, addr)
		assert.Equal(t, firstBump, bump)
	}
	assert.Equal(t, "EVzgHkgMAU8CamqcTeE41bsq5AG6P7Rzg2DiRCMr4rrX", first.String())
	assert.Equal(t, uint8(252), firstBump)
}

func TestFindProgramAddress_DifferentInputs(t *testing.T) {
	base, _, err := FindProgramAddress([][]byte{[]byte("marketplace"), []byte("a")}, testProgram)
	require.NoError(t, err)

	otherSeed, _, err := FindProgramAddress([][]byte{[]byte("marketplace"), []byte("b")}, testProgram)
	require.NoError(t, err)
	assert.NotEqual(t, base, otherSeed)

	otherProgram, _, err := FindProgramAddress([][]byte{[]byte("marketplace"), []byte("a")}, Zero)
	require.NoError(t, err)
	assert.NotEqual(t, base, otherProgram)
}

func TestCreateProgramAddress_MatchesFind(t *testing.T) {
	seeds := [][]byte{[]byte("marketplace"), []byte("test")}
	addr, bump, err := FindProgramAddress(seeds, testProgram)
	require.NoError(t, err)

	again, err := CreateProgramAddress(append(seeds, []byte{bump}), testProgram)
	require.NoError(t, err)
	assert.Equal(t, addr, again)
}

func TestCreateProgramAddress_SeedLimits(t *testing.T) {
	_, err := CreateProgramAddress([][]byte{bytes.Repeat([]byte{1}, MaxSeedLength+1)}, testProgram)
	assert.ErrorIs(t, err, ErrMaxSeedLengthExceeded)

	tooMany := make([][]byte, MaxSeeds+1)
	for i := range tooMany {
		tooMany[i] = []byte{byte(i)}
	}
	_, err = CreateProgramAddress(tooMany, testProgram)
	assert.ErrorIs(t, err, ErrMaxSeedLengthExceeded)

	_, _, err = FindProgramAddress(tooMany[:MaxSeeds], testProgram)
	assert.ErrorIs(t, err, ErrMaxSeedLengthExceeded, "bump counts towards the seed limit")
}

func TestIsOnCurve(t *testing.T) {
	kp, err := KeypairFromSeed(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	pub := kp.PublicKey()
	assert.True(t, IsOnCurve(pub[:]), "wallet keys are curve points")

	tokenProgram := MustParse("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	assert.True(t, IsOnCurve(tokenProgram[:]))
	assert.False(t, IsOnCurve(testProgram[:]))
	assert.False(t, IsOnCurve([]byte{1, 2, 3}))
}
