package proof

import (
	"os"
	"path/filepath"

	"golang.org/x/xerrors"
)

const PauxFile = "p_aux"

func ReadPAux(cache string) (commC PoseidonDomain, commRLast PoseidonDomain, err error) {
	commCcommRLast, err := os.ReadFile(filepath.Join(cache, PauxFile))
	if err != nil {
		return commC, commRLast, err
	}

	if len(commCcommRLast) != 2*NODE_SIZE {
		return commC, commRLast, xerrors.Errorf("invalid p_aux length %d", len(commCcommRLast))
	}

	copy(commC[:], commCcommRLast[:NODE_SIZE])
	copy(commRLast[:], commCcommRLast[NODE_SIZE:])
	return commC, commRLast, nil
}

func WritePAux(cache string, commC, commRLast PoseidonDomain) error {
	commCcommRLast := make([]byte, 0, 2*NODE_SIZE)
	commCcommRLast = append(commCcommRLast, commC[:]...)
	commCcommRLast = append(commCcommRLast, commRLast[:]...)

	return os.WriteFile(filepath.Join(cache, PauxFile), commCcommRLast, 0644)
}
