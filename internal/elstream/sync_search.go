package elstream

import (
	"github.com/keisuke0821/elenc/internal/elerrors"
	"github.com/keisuke0821/elenc/internal/packet"
	"github.com/keisuke0821/elenc/internal/syncmachine"
)

type packetSource struct{ s *Stream }

func (p packetSource) PacketAt(i uint64) (uint32, int32, packet.Kind, error) {
	return p.s.GetData(i)
}

// GetFirstSync returns the first complete sync record in the file, widening
// its scan window geometrically until one is found.
func (s *Stream) GetFirstSync() (syncmachine.Info, error) {
	return s.findFirstSync(0, SeekLength)
}

func (s *Stream) findFirstSync(seekFrom, seekLength uint64) (syncmachine.Info, error) {
	records, _, err := syncmachine.Scan(packetSource{s}, seekFrom, seekFrom+seekLength)
	if err != nil {
		return syncmachine.Info{}, err
	}
	if len(records) == 0 {
		next := seekFrom + seekLength - 7
		return s.findFirstSync(next, seekLength*10)
	}
	return records[0], nil
}

// GetLastSync returns the last sync record in the file. acceptResidue, when
// true, also accepts a trailing in-progress (incomplete) sequence instead
// of requiring a fully completed one — used by a following file's Defrag to
// resume a sequence split across the boundary.
func (s *Stream) GetLastSync(acceptResidue bool) (syncmachine.Info, int, error) {
	return s.findLastSync(0, SeekLength, acceptResidue)
}

func (s *Stream) findLastSync(seekFrom, seekLength uint64, acceptResidue bool) (syncmachine.Info, int, error) {
	length, err := s.Length()
	if err != nil {
		return syncmachine.Info{}, 0, err
	}
	if seekFrom > length {
		return syncmachine.Info{}, 0, elerrors.ErrEOF
	}

	var start uint64
	if length > seekLength+seekFrom {
		start = length - seekLength - seekFrom
	}
	records, uartCount, err := syncmachine.Scan(packetSource{s}, start, length-seekFrom)
	if err != nil {
		return syncmachine.Info{}, 0, err
	}

	if len(records) == 0 {
		return s.findLastSync(seekFrom+seekLength-7, seekLength*10, acceptResidue)
	}

	if uartCount > 0 {
		if acceptResidue {
			return records[len(records)-1], uartCount, nil
		}
		if len(records) > 1 {
			return records[len(records)-2], uartCount, nil
		}
		return s.findLastSync(seekFrom+seekLength-7, seekLength*10, acceptResidue)
	}

	return records[len(records)-1], uartCount, nil
}
