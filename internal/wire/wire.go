// Package wire implements the p2p frame format and the four message
// kinds darkwiki peers exchange: hello, sync, fetch and object. Every
// frame is magic(u16=1337) + version(u16=1) + command(12-byte
// NUL-padded ASCII) + payload(u16-len-prefixed) + checksum(u32, the
// first four bytes of SHA-256 of everything before it, read
// little-endian).
package wire

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/systemshift/darkwiki/internal/codec"
	"github.com/systemshift/darkwiki/internal/objstore"
)

const (
	magic           = 1337
	protocolVersion = 1
	commandSize     = 12
)

// Command names the four message kinds; the protocol has no open-ended
// command set, these are the only ones a conforming peer need recognize.
type Command string

const (
	CmdHello  Command = "hello"
	CmdSync   Command = "sync"
	CmdFetch  Command = "fetch"
	CmdObject Command = "object"
)

// ErrBadFrame is returned for a frame that fails its magic, version or
// checksum check, or is too short to contain one.
var ErrBadFrame = fmt.Errorf("wire: bad frame")

func framePrefix(command Command, payload []byte) []byte {
	s := codec.NewSerializer()
	s.WriteUint16(magic)
	s.WriteUint16(protocolVersion)
	s.WriteFixedString(string(command), commandSize)
	s.WriteData(payload)
	return s.Bytes()
}

func checksumOf(prefix []byte) uint32 {
	sum := sha256.Sum256(prefix)
	return binary.LittleEndian.Uint32(sum[:4])
}

// EncodeFrame wraps command and payload in a checksummed frame.
func EncodeFrame(command Command, payload []byte) []byte {
	prefix := framePrefix(command, payload)
	s := codec.NewSerializer()
	s.Append(prefix)
	s.WriteUint32(checksumOf(prefix))
	return s.Bytes()
}

// DecodeFrame validates and unwraps a frame, returning its command and
// payload.
func DecodeFrame(data []byte) (Command, []byte, error) {
	d := codec.NewDeserializer(data)

	gotMagic, err := d.ReadUint16()
	if err != nil {
		return "", nil, ErrBadFrame
	}
	gotVersion, err := d.ReadUint16()
	if err != nil {
		return "", nil, ErrBadFrame
	}
	command, err := d.ReadFixedString(commandSize)
	if err != nil {
		return "", nil, ErrBadFrame
	}
	payload, err := d.ReadData()
	if err != nil {
		return "", nil, ErrBadFrame
	}
	gotChecksum, err := d.ReadUint32()
	if err != nil {
		return "", nil, ErrBadFrame
	}

	if gotMagic != magic || gotVersion != protocolVersion {
		return "", nil, ErrBadFrame
	}
	if checksumOf(framePrefix(Command(command), payload)) != gotChecksum {
		return "", nil, ErrBadFrame
	}

	return Command(command), payload, nil
}

// EncodeHello builds an empty hello frame.
func EncodeHello() []byte {
	return EncodeFrame(CmdHello, nil)
}

// SyncTip is one branch's reported tip commit.
type SyncTip struct {
	Branch string
	Commit objstore.Ident
}

// EncodeSync builds a sync frame announcing every local branch's tip.
func EncodeSync(tips []SyncTip) []byte {
	s := codec.NewSerializer()
	s.WriteUint32(uint32(len(tips)))
	for _, t := range tips {
		s.WriteString(t.Branch)
		s.WriteData(t.Commit[:])
	}
	return EncodeFrame(CmdSync, s.Bytes())
}

// DecodeSync parses a sync frame's payload.
func DecodeSync(payload []byte) ([]SyncTip, error) {
	d := codec.NewDeserializer(payload)
	count, err := d.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("decode sync: %w", err)
	}
	tips := make([]SyncTip, 0, count)
	for i := uint32(0); i < count; i++ {
		branch, err := d.ReadString()
		if err != nil {
			return nil, fmt.Errorf("decode sync: %w", err)
		}
		raw, err := d.ReadData()
		if err != nil {
			return nil, fmt.Errorf("decode sync: %w", err)
		}
		if len(raw) != objstore.IdentSize {
			return nil, fmt.Errorf("decode sync: bad commit ident length %d", len(raw))
		}
		var id objstore.Ident
		copy(id[:], raw)
		tips = append(tips, SyncTip{Branch: branch, Commit: id})
	}
	return tips, nil
}

// EncodeFetch builds a fetch frame requesting one object, a bare 32-byte
// identifier with no length prefix.
func EncodeFetch(ident objstore.Ident) []byte {
	return EncodeFrame(CmdFetch, ident[:])
}

// DecodeFetch parses a fetch frame's payload.
func DecodeFetch(payload []byte) (objstore.Ident, error) {
	if len(payload) != objstore.IdentSize {
		return objstore.Ident{}, fmt.Errorf("decode fetch: bad ident length %d", len(payload))
	}
	var id objstore.Ident
	copy(id[:], payload)
	return id, nil
}

// TreeRow is one entry of a TREE object's body, as carried over the wire.
type TreeRow struct {
	Mode  string
	Kind  objstore.Kind
	Ident objstore.Ident
	Name  string
}

// CommitPayload is a COMMIT object's body, as carried over the wire.
type CommitPayload struct {
	Tree           objstore.Ident
	Timestamp      uint32
	UTCOffset      uint32
	PreviousCommit objstore.Ident
	HasPrevious    bool
}

// ObjectMessage carries one object (of any kind) in response to a fetch.
type ObjectMessage struct {
	Ident  objstore.Ident
	Kind   objstore.Kind
	Blob   []byte
	Tree   []TreeRow
	Commit CommitPayload
}

// EncodeObject builds an object frame.
func EncodeObject(m ObjectMessage) []byte {
	s := codec.NewSerializer()
	s.WriteData(m.Ident[:])
	s.WriteByte(byte(m.Kind))
	switch m.Kind {
	case objstore.KindBlob:
		s.WriteData(m.Blob)
	case objstore.KindTree:
		s.WriteUint32(uint32(len(m.Tree)))
		for _, row := range m.Tree {
			s.WriteString(row.Mode)
			s.WriteByte(byte(row.Kind))
			s.WriteData(row.Ident[:])
			s.WriteString(row.Name)
		}
	case objstore.KindCommit:
		s.WriteData(m.Commit.Tree[:])
		s.WriteUint32(m.Commit.Timestamp)
		s.WriteUint32(m.Commit.UTCOffset)
		if m.Commit.HasPrevious {
			s.WriteData(m.Commit.PreviousCommit[:])
		} else {
			s.WriteData(nil)
		}
	}
	return EncodeFrame(CmdObject, s.Bytes())
}

// DecodeObject parses an object frame's payload.
func DecodeObject(payload []byte) (ObjectMessage, error) {
	d := codec.NewDeserializer(payload)

	identRaw, err := d.ReadData()
	if err != nil {
		return ObjectMessage{}, fmt.Errorf("decode object: %w", err)
	}
	if len(identRaw) != objstore.IdentSize {
		return ObjectMessage{}, fmt.Errorf("decode object: bad ident length %d", len(identRaw))
	}
	var ident objstore.Ident
	copy(ident[:], identRaw)

	kindByte, err := d.ReadByte()
	if err != nil {
		return ObjectMessage{}, fmt.Errorf("decode object: %w", err)
	}
	kind := objstore.Kind(kindByte)

	msg := ObjectMessage{Ident: ident, Kind: kind}

	switch kind {
	case objstore.KindBlob:
		blob, err := d.ReadData()
		if err != nil {
			return ObjectMessage{}, fmt.Errorf("decode object: %w", err)
		}
		msg.Blob = blob

	case objstore.KindTree:
		count, err := d.ReadUint32()
		if err != nil {
			return ObjectMessage{}, fmt.Errorf("decode object: %w", err)
		}
		rows := make([]TreeRow, 0, count)
		for i := uint32(0); i < count; i++ {
			mode, err := d.ReadString()
			if err != nil {
				return ObjectMessage{}, fmt.Errorf("decode object: %w", err)
			}
			rowKindByte, err := d.ReadByte()
			if err != nil {
				return ObjectMessage{}, fmt.Errorf("decode object: %w", err)
			}
			rowIdentRaw, err := d.ReadData()
			if err != nil {
				return ObjectMessage{}, fmt.Errorf("decode object: %w", err)
			}
			if len(rowIdentRaw) != objstore.IdentSize {
				return ObjectMessage{}, fmt.Errorf("decode object: bad row ident length %d", len(rowIdentRaw))
			}
			var rowIdent objstore.Ident
			copy(rowIdent[:], rowIdentRaw)
			name, err := d.ReadString()
			if err != nil {
				return ObjectMessage{}, fmt.Errorf("decode object: %w", err)
			}
			rows = append(rows, TreeRow{Mode: mode, Kind: objstore.Kind(rowKindByte), Ident: rowIdent, Name: name})
		}
		msg.Tree = rows

	case objstore.KindCommit:
		treeRaw, err := d.ReadData()
		if err != nil {
			return ObjectMessage{}, fmt.Errorf("decode object: %w", err)
		}
		if len(treeRaw) != objstore.IdentSize {
			return ObjectMessage{}, fmt.Errorf("decode object: bad tree ident length %d", len(treeRaw))
		}
		var tree objstore.Ident
		copy(tree[:], treeRaw)

		timestamp, err := d.ReadUint32()
		if err != nil {
			return ObjectMessage{}, fmt.Errorf("decode object: %w", err)
		}
		utcOffset, err := d.ReadUint32()
		if err != nil {
			return ObjectMessage{}, fmt.Errorf("decode object: %w", err)
		}
		previousRaw, err := d.ReadData()
		if err != nil {
			return ObjectMessage{}, fmt.Errorf("decode object: %w", err)
		}

		commit := CommitPayload{Tree: tree, Timestamp: timestamp, UTCOffset: utcOffset}
		if len(previousRaw) > 0 {
			if len(previousRaw) != objstore.IdentSize {
				return ObjectMessage{}, fmt.Errorf("decode object: bad previous commit ident length %d", len(previousRaw))
			}
			copy(commit.PreviousCommit[:], previousRaw)
			commit.HasPrevious = true
		}
		msg.Commit = commit

	default:
		return ObjectMessage{}, fmt.Errorf("decode object: unknown kind %d", kind)
	}

	return msg, nil
}
