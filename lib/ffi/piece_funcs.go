package ffi

import (
	"github.com/filecoin-project/sdr-porep/lib/sdr"
)

// StagePiece pads a raw file into sealable data. The value is the piece info
// ExtractPiece needs later.
func (sb *SealCalls) StagePiece(src, dst string) Handle {
	return sb.wrap("stage_piece", func() (any, error) {
		info, err := sdr.StagePiece(src, dst)
		if err != nil {
			return nil, err
		}
		return info, nil
	})
}

func (sb *SealCalls) ExtractPiece(staged string, pieceInfo []byte, out string) Handle {
	return sb.wrap("extract_piece", func() (any, error) {
		info, err := sdr.UnmarshalPieceInfo(pieceInfo)
		if err != nil {
			return nil, err
		}
		return nil, sdr.ExtractPiece(staged, info, out)
	})
}
