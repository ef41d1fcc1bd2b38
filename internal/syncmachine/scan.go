package syncmachine

import (
	"errors"
	"fmt"

	"github.com/keisuke0821/elenc/internal/elerrors"
	"github.com/keisuke0821/elenc/internal/packet"
)

// Source is a random-access view over decoded packets, implemented by
// internal/elstream over a filereader.Reader.
type Source interface {
	PacketAt(i uint64) (stamp uint32, data int32, kind packet.Kind, err error)
}

// Scan reconstructs every complete sync record whose six UART packets fall
// within [start, end), plus any still-open sync-id accumulation at the end
// of the range (appended last). trailingUartCount is the number of UARTs
// seen since the last SYNC; only a SYNC resets it, so it is 6 after a
// completed sequence. It restores nothing about the source's position;
// callers own that.
func Scan(src Source, start, end uint64) (records []Info, trailingUartCount int, err error) {
	if _, _, _, err := src.PacketAt(start); err != nil {
		return nil, 0, err
	}

	var (
		syncIn     bool
		syncID     int64
		syncStamp  int64
		syncOffset int32
		uartCount  int
	)

	for i := start; i < end; i++ {
		stamp, data, kind, err := src.PacketAt(i)
		if err != nil {
			if errors.Is(err, elerrors.ErrEOF) {
				break
			}
			return nil, 0, err
		}

		switch kind {
		case packet.KindSync:
			syncIn = true
			syncStamp = int64(stamp)
			syncOffset = data
			syncID = 0
			uartCount = 0
		case packet.KindUart:
			if uartCount == 6 {
				return nil, 0, fmt.Errorf("syncmachine: UART too long at packet %d", i)
			}
			if uartCount != 0 {
				syncID += int64(data) << uint(8*(uartCount-1))
			}
			uartCount++
		default: // DATA
			if uartCount == 6 {
				if syncIn {
					records = append(records, Info{Stamp: syncStamp, ID: syncID, Offset: syncOffset})
				}
				syncID = 0
				syncIn = false
			}
		}
	}

	if syncIn {
		records = append(records, Info{Stamp: syncStamp, ID: syncID, Offset: syncOffset})
	}
	return records, uartCount, nil
}
