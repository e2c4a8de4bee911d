package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/parley/internal/domain"
)

func TestEncodeHeaderLayout(t *testing.T) {
	buf, err := Encode(&Disconnect{Reason: "bye"})
	require.NoError(t, err)

	payload := []byte(`{"reason":"bye"}`)
	require.Len(t, buf, HeaderSize+len(payload))
	assert.Equal(t, uint32(len(payload)), binary.LittleEndian.Uint32(buf[0:4]))
	assert.Equal(t, uint32(KindDisconnect), binary.LittleEndian.Uint32(buf[4:8]))
	assert.Equal(t, payload, buf[HeaderSize:])
}

func TestFrameRoundTrip(t *testing.T) {
	packets := []Packet{
		&VersionExchange{Version: "1.0.0"},
		&Heartbeat{},
		&AuthenticationData{Username: "alice", PrivilegeKey: "key"},
		&StateChanged{NewState: domain.StateConnected, SessionID: "sid-1"},
		&ChannelAdded{
			ChannelID:  "ch-1",
			Name:       "Lobby",
			Type:       domain.ChannelVoice,
			MaxClients: 8,
			Bitrate:    48000,
			Clients:    []string{"alice", "bob"},
		},
		&RequestChannelJoin{RequestID: "r-1", ChannelID: "ch-1"},
		&ChannelJoinResponse{RequestID: "r-1", Allowed: false, Reason: "Channel not found"},
		&VoiceData{Username: "alice", Data: []byte{0x01, 0x02, 0xff}},
	}

	var buf bytes.Buffer
	for _, p := range packets {
		require.NoError(t, WriteFrame(&buf, p))
	}
	for _, want := range packets {
		got, err := ReadFrame(&buf)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ReadFrame(&buf)
	assert.Equal(t, io.EOF, err)
}

func TestReadFrameUnknownKind(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte(`{}`)
	var header [HeaderSize]byte
	binary.LittleEndian.PutUint32(header[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(header[4:8], 9999)
	buf.Write(header[:])
	buf.Write(payload)

	_, err := ReadFrame(&buf)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, Kind(9999), de.Packet)
	// The payload was consumed, so the stream stays aligned.
	assert.Zero(t, buf.Len())
}

func TestReadFrameMalformedPayload(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte(`{"version":`)
	var header [HeaderSize]byte
	binary.LittleEndian.PutUint32(header[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(header[4:8], uint32(KindVersionExchange))
	buf.Write(header[:])
	buf.Write(payload)
	require.NoError(t, WriteFrame(&buf, &Heartbeat{}))

	_, err := ReadFrame(&buf)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, KindVersionExchange, de.Packet)

	// The next frame is still readable.
	p, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, KindHeartbeat, p.Kind())
}

func TestReadFrameTruncated(t *testing.T) {
	full, err := Encode(&Disconnect{Reason: "bye"})
	require.NoError(t, err)

	_, err = ReadFrame(bytes.NewReader(full[:HeaderSize-2]))
	assert.Error(t, err)
	var de *DecodeError
	assert.False(t, errors.As(err, &de))

	_, err = ReadFrame(bytes.NewReader(full[:len(full)-3]))
	assert.Equal(t, io.ErrUnexpectedEOF, err)
}

func TestReadFrameOversizedLength(t *testing.T) {
	var header [HeaderSize]byte
	binary.LittleEndian.PutUint32(header[0:4], MaxPayloadSize+1)
	binary.LittleEndian.PutUint32(header[4:8], uint32(KindHeartbeat))

	_, err := ReadFrame(bytes.NewReader(header[:]))
	assert.Equal(t, ErrPayloadTooLarge, err)
}

func TestDecodeDatagram(t *testing.T) {
	buf, err := Encode(&MediaAuthentication{Username: "alice", SessionID: "sid-1"})
	require.NoError(t, err)

	p, err := DecodeDatagram(buf)
	require.NoError(t, err)
	auth, ok := p.(*MediaAuthentication)
	require.True(t, ok)
	assert.Equal(t, "alice", auth.Username)
	assert.Equal(t, domain.SessionID("sid-1"), auth.SessionID)
}

func TestDecodeDatagramShort(t *testing.T) {
	_, err := DecodeDatagram([]byte{1, 2, 3})
	assert.Equal(t, ErrShortFrame, err)

	buf, err := Encode(&Heartbeat{})
	require.NoError(t, err)
	_, err = DecodeDatagram(buf[:len(buf)-1])
	assert.Equal(t, ErrShortFrame, err)
}
