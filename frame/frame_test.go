package frame_test

import (
	"bufio"
	"bytes"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/motionpad/frame"
)

func sample() frame.ControlFrame {
	return frame.ControlFrame{
		LeftX:     0.5,
		LeftY:     -0.25,
		RightX:    1,
		RightY:    -1,
		Buttons:   frame.ButtonA | frame.ButtonStart,
		Azimuth:   3.1415927,
		Timestamp: 1234567890123,
	}
}

func assertFrameEqual(t *testing.T, want, got frame.ControlFrame) {
	t.Helper()
	assert.InDelta(t, want.LeftX, got.LeftX, 1e-6)
	assert.InDelta(t, want.LeftY, got.LeftY, 1e-6)
	assert.InDelta(t, want.RightX, got.RightX, 1e-6)
	assert.InDelta(t, want.RightY, got.RightY, 1e-6)
	assert.InDelta(t, want.Azimuth, got.Azimuth, 1e-6)
	assert.Equal(t, want.Buttons, got.Buttons)
	assert.Equal(t, want.Timestamp, got.Timestamp)
}

func TestBinaryLayout(t *testing.T) {
	f := frame.ControlFrame{LeftX: 1, Buttons: 0x01020304, Timestamp: 0x1122334455667788}
	b, err := f.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, frame.Size)

	expected := []byte{
		0x00, 0x00, 0x80, 0x3f, // leftX = 1.0
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x04, 0x03, 0x02, 0x01, // buttons
		0x00, 0x00, 0x00, 0x00,
		0x88, 0x77, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11, // timestamp
	}
	assert.Equal(t, expected, b)
}

func TestCodecs_RoundTrip(t *testing.T) {
	frames := []frame.ControlFrame{
		{},
		sample(),
		{LeftX: -1, LeftY: 1, RightX: 0.1234567, RightY: -0.7654321, Buttons: math.MaxUint32, Azimuth: 6.2831, Timestamp: math.MaxUint64},
	}
	for _, name := range []string{frame.CodecBinary, frame.CodecJSON} {
		t.Run(name, func(t *testing.T) {
			codec, err := frame.CodecByName(name)
			require.NoError(t, err)
			assert.Equal(t, name, codec.Name())

			var stream bytes.Buffer
			for i := range frames {
				b, err := codec.Encode(&frames[i])
				require.NoError(t, err)
				stream.Write(b)
			}

			r := bufio.NewReader(&stream)
			for _, want := range frames {
				got, err := codec.Decode(r)
				require.NoError(t, err)
				assertFrameEqual(t, want, *got)
			}
			_, err = codec.Decode(r)
			assert.ErrorIs(t, err, io.EOF)
		})
	}
}

func TestCodecs_RejectInvalidFrames(t *testing.T) {
	type testCase struct {
		name    string
		mutate  func(f *frame.ControlFrame)
		wantErr error
	}
	testCases := []testCase{
		{name: "NaN stick", mutate: func(f *frame.ControlFrame) { f.LeftY = float32(math.NaN()) }, wantErr: frame.ErrNonFinite},
		{name: "infinite stick", mutate: func(f *frame.ControlFrame) { f.RightX = float32(math.Inf(-1)) }, wantErr: frame.ErrNonFinite},
		{name: "NaN azimuth", mutate: func(f *frame.ControlFrame) { f.Azimuth = float32(math.NaN()) }, wantErr: frame.ErrNonFinite},
		{name: "stick above range", mutate: func(f *frame.ControlFrame) { f.LeftX = 1.5 }, wantErr: frame.ErrOutOfRange},
	}
	for _, tc := range testCases {
		for _, codec := range []frame.Codec{frame.Binary{}, frame.JSON{}} {
			t.Run(tc.name+"/"+codec.Name(), func(t *testing.T) {
				f := sample()
				tc.mutate(&f)
				b, err := codec.Encode(&f)
				assert.Nil(t, b)
				assert.ErrorIs(t, err, tc.wantErr)
			})
		}
	}
}

func TestBinaryDecode_Short(t *testing.T) {
	_, err := frame.Binary{}.Decode(bufio.NewReader(bytes.NewReader(make([]byte, 10))))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	var f frame.ControlFrame
	assert.ErrorIs(t, f.UnmarshalBinary(make([]byte, 31)), io.ErrUnexpectedEOF)
}

func TestJSONDecode_Strict(t *testing.T) {
	r := bufio.NewReader(bytes.NewBufferString(`{"leftX":0.5,"extra":true}` + "\n"))
	_, err := frame.JSON{}.Decode(r)
	require.Error(t, err)
	assert.ErrorIs(t, err, frame.ErrMalformed)
}

func TestJSONEncode_FieldNames(t *testing.T) {
	f := sample()
	b, err := frame.JSON{}.Encode(&f)
	require.NoError(t, err)
	for _, key := range []string{"leftX", "leftY", "rightX", "rightY", "buttons", "azimuth", "timestamp"} {
		assert.Contains(t, string(b), `"`+key+`"`)
	}
	assert.Equal(t, byte('\n'), b[len(b)-1])
}

func TestClampStick(t *testing.T) {
	assert.Equal(t, float32(1), frame.ClampStick(3))
	assert.Equal(t, float32(-1), frame.ClampStick(math.Inf(-1)))
	assert.Equal(t, float32(0), frame.ClampStick(math.NaN()))
	assert.Equal(t, float32(0.5), frame.ClampStick(0.5))
}

func TestCodecByName_Unknown(t *testing.T) {
	_, err := frame.CodecByName("protobuf")
	assert.Error(t, err)
}
