package probe

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// parseContainer extracts duration and dimensions directly from the container
// header, covering the two containers this system emits plus common inputs.
func parseContainer(path string) (Result, error) {
	file, err := os.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return Result{}, err
	}

	magic := make([]byte, 12)
	if _, err := io.ReadFull(file, magic); err != nil {
		return Result{}, fmt.Errorf("read container magic: %w", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return Result{}, err
	}

	switch {
	case string(magic[4:8]) == "ftyp":
		return parseMP4(file, info.Size())
	case binary.BigEndian.Uint32(magic[:4]) == 0x1A45DFA3:
		return parseMatroska(file, info.Size())
	default:
		return Result{}, errors.New("unrecognized container")
	}
}

// --- MP4 ---

func parseMP4(r io.ReadSeeker, size int64) (Result, error) {
	result := Result{}
	if err := walkBoxes(r, 0, size, func(name string, offset, length int64) error {
		if name != "moov" {
			return nil
		}
		return walkBoxes(r, offset, length, func(child string, childOffset, childLength int64) error {
			switch child {
			case "mvhd":
				seconds, err := readMVHD(r, childOffset, childLength)
				if err == nil {
					result.DurationSeconds = seconds
				}
			case "trak":
				return walkBoxes(r, childOffset, childLength, func(grand string, grandOffset, grandLength int64) error {
					if grand != "tkhd" {
						return nil
					}
					width, height, err := readTKHD(r, grandOffset, grandLength)
					if err == nil && width > 0 && height > 0 && result.WidthPx == 0 {
						result.WidthPx = width
						result.HeightPx = height
					}
					return nil
				})
			}
			return nil
		})
	}); err != nil {
		return Result{}, err
	}
	if result.DurationSeconds == 0 && result.WidthPx == 0 {
		return Result{}, errors.New("mp4: no usable moov data")
	}
	return result, nil
}

// walkBoxes visits each box in [start, start+length) and invokes fn with the
// box payload bounds.
func walkBoxes(r io.ReadSeeker, start, length int64, fn func(name string, offset, size int64) error) error {
	offset := start
	end := start + length
	header := make([]byte, 8)
	for offset+8 <= end {
		if _, err := r.Seek(offset, io.SeekStart); err != nil {
			return err
		}
		if _, err := io.ReadFull(r, header); err != nil {
			return err
		}
		boxSize := int64(binary.BigEndian.Uint32(header[:4]))
		name := string(header[4:8])
		headerLen := int64(8)
		switch boxSize {
		case 0:
			boxSize = end - offset
		case 1:
			large := make([]byte, 8)
			if _, err := io.ReadFull(r, large); err != nil {
				return err
			}
			boxSize = int64(binary.BigEndian.Uint64(large))
			headerLen = 16
		}
		if boxSize < headerLen || offset+boxSize > end {
			return fmt.Errorf("mp4: malformed box %q at %d", name, offset)
		}
		if err := fn(name, offset+headerLen, boxSize-headerLen); err != nil {
			return err
		}
		offset += boxSize
	}
	return nil
}

func readMVHD(r io.ReadSeeker, offset, length int64) (int, error) {
	payload, err := readPayload(r, offset, length, 32)
	if err != nil {
		return 0, err
	}
	version := payload[0]
	var timescale, duration uint64
	if version == 1 {
		if len(payload) < 32 {
			return 0, errors.New("mvhd: short v1 payload")
		}
		timescale = uint64(binary.BigEndian.Uint32(payload[20:24]))
		duration = binary.BigEndian.Uint64(payload[24:32])
	} else {
		if len(payload) < 20 {
			return 0, errors.New("mvhd: short v0 payload")
		}
		timescale = uint64(binary.BigEndian.Uint32(payload[12:16]))
		duration = uint64(binary.BigEndian.Uint32(payload[16:20]))
	}
	if timescale == 0 {
		return 0, errors.New("mvhd: zero timescale")
	}
	return int(duration / timescale), nil
}

func readTKHD(r io.ReadSeeker, offset, length int64) (int, int, error) {
	payload, err := readPayload(r, offset, length, 96)
	if err != nil {
		return 0, 0, err
	}
	// Width and height are 16.16 fixed point at the end of the box.
	widthOffset := 76
	if payload[0] == 1 {
		widthOffset = 88
	}
	if len(payload) < widthOffset+8 {
		return 0, 0, errors.New("tkhd: short payload")
	}
	width := int(binary.BigEndian.Uint32(payload[widthOffset:widthOffset+4]) >> 16)
	height := int(binary.BigEndian.Uint32(payload[widthOffset+4:widthOffset+8]) >> 16)
	return width, height, nil
}

func readPayload(r io.ReadSeeker, offset, length int64, max int64) ([]byte, error) {
	if length > max {
		length = max
	}
	if _, err := r.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// --- Matroska ---

const (
	ebmlHeaderID     = 0x1A45DFA3
	ebmlSegmentID    = 0x18538067
	ebmlInfoID       = 0x1549A966
	ebmlTracksID     = 0x1654AE6B
	ebmlClusterID    = 0x1F43B666
	ebmlTimeScaleID  = 0x2AD7B1
	ebmlDurationID   = 0x4489
	ebmlTrackEntryID = 0xAE
	ebmlVideoID      = 0xE0
	ebmlPixelWidth   = 0xB0
	ebmlPixelHeight  = 0xBA
)

type ebmlReader struct {
	r   io.ReadSeeker
	end int64
}

func parseMatroska(r io.ReadSeeker, size int64) (Result, error) {
	er := &ebmlReader{r: r, end: size}
	result := Result{}
	timescale := uint64(1_000_000)
	var durationTicks float64

	offset := int64(0)
	for offset < size {
		id, elemOffset, elemSize, err := er.element(offset)
		if err != nil {
			break
		}
		switch id {
		case ebmlHeaderID:
			// skip
		case ebmlSegmentID:
			segEnd := elemOffset + elemSize
			if elemSize < 0 || segEnd > size {
				segEnd = size
			}
			child := elemOffset
			for child < segEnd {
				childID, childOffset, childSize, err := er.element(child)
				if err != nil || childSize < 0 {
					child = segEnd
					break
				}
				switch childID {
				case ebmlInfoID:
					er.parseInfo(childOffset, childSize, &timescale, &durationTicks)
				case ebmlTracksID:
					er.parseTracks(childOffset, childSize, &result)
				case ebmlClusterID:
					// Media data begins; the header elements are behind us.
					child = segEnd
					continue
				}
				child = childOffset + childSize
			}
		}
		if elemSize < 0 {
			break
		}
		offset = elemOffset + elemSize
	}

	if durationTicks > 0 {
		result.DurationSeconds = int(durationTicks * float64(timescale) / 1e9)
	}
	if result.DurationSeconds == 0 && result.WidthPx == 0 {
		return Result{}, errors.New("matroska: no usable header data")
	}
	return result, nil
}

func (er *ebmlReader) parseInfo(offset, size int64, timescale *uint64, duration *float64) {
	end := offset + size
	for offset < end {
		id, payloadOffset, payloadSize, err := er.element(offset)
		if err != nil || payloadSize < 0 {
			return
		}
		switch id {
		case ebmlTimeScaleID:
			if v, err := er.readUint(payloadOffset, payloadSize); err == nil && v > 0 {
				*timescale = v
			}
		case ebmlDurationID:
			if v, err := er.readFloat(payloadOffset, payloadSize); err == nil {
				*duration = v
			}
		}
		offset = payloadOffset + payloadSize
	}
}

func (er *ebmlReader) parseTracks(offset, size int64, result *Result) {
	end := offset + size
	for offset < end {
		id, payloadOffset, payloadSize, err := er.element(offset)
		if err != nil || payloadSize < 0 {
			return
		}
		if id == ebmlTrackEntryID {
			er.parseTrackEntry(payloadOffset, payloadSize, result)
		}
		offset = payloadOffset + payloadSize
	}
}

func (er *ebmlReader) parseTrackEntry(offset, size int64, result *Result) {
	end := offset + size
	for offset < end {
		id, payloadOffset, payloadSize, err := er.element(offset)
		if err != nil || payloadSize < 0 {
			return
		}
		if id == ebmlVideoID && result.WidthPx == 0 {
			videoEnd := payloadOffset + payloadSize
			video := payloadOffset
			for video < videoEnd {
				videoID, vOffset, vSize, err := er.element(video)
				if err != nil || vSize < 0 {
					return
				}
				switch videoID {
				case ebmlPixelWidth:
					if v, err := er.readUint(vOffset, vSize); err == nil {
						result.WidthPx = int(v)
					}
				case ebmlPixelHeight:
					if v, err := er.readUint(vOffset, vSize); err == nil {
						result.HeightPx = int(v)
					}
				}
				video = vOffset + vSize
			}
		}
		offset = payloadOffset + payloadSize
	}
}

// element reads the EBML id and size at offset, returning the payload bounds.
// A size of -1 means "unknown" (streamed segment).
func (er *ebmlReader) element(offset int64) (id uint64, payloadOffset, payloadSize int64, err error) {
	id, n, err := er.readVint(offset, false)
	if err != nil {
		return 0, 0, 0, err
	}
	size, m, err := er.readVint(offset+int64(n), true)
	if err != nil {
		return 0, 0, 0, err
	}
	payloadOffset = offset + int64(n) + int64(m)
	payloadSize = int64(size)
	if allOnes(size, m) {
		payloadSize = -1
	}
	return id, payloadOffset, payloadSize, nil
}

// readVint reads an EBML variable-length integer. Element ids keep their
// length-marker bits; sizes have them stripped.
func (er *ebmlReader) readVint(offset int64, stripMarker bool) (uint64, int, error) {
	if _, err := er.r.Seek(offset, io.SeekStart); err != nil {
		return 0, 0, err
	}
	first := make([]byte, 1)
	if _, err := io.ReadFull(er.r, first); err != nil {
		return 0, 0, err
	}
	b := first[0]
	if b == 0 {
		return 0, 0, errors.New("ebml: invalid vint")
	}
	length := 1
	for mask := byte(0x80); mask > 0 && b&mask == 0; mask >>= 1 {
		length++
	}
	if length > 8 {
		return 0, 0, errors.New("ebml: vint too long")
	}
	value := uint64(b)
	if stripMarker {
		value = uint64(b & (0xFF >> length))
	}
	rest := make([]byte, length-1)
	if _, err := io.ReadFull(er.r, rest); err != nil {
		return 0, 0, err
	}
	for _, c := range rest {
		value = value<<8 | uint64(c)
	}
	return value, length, nil
}

func (er *ebmlReader) readUint(offset, size int64) (uint64, error) {
	if size <= 0 || size > 8 {
		return 0, errors.New("ebml: bad uint size")
	}
	payload, err := readPayload(er.r, offset, size, 8)
	if err != nil {
		return 0, err
	}
	var value uint64
	for _, b := range payload {
		value = value<<8 | uint64(b)
	}
	return value, nil
}

func (er *ebmlReader) readFloat(offset, size int64) (float64, error) {
	payload, err := readPayload(er.r, offset, size, 8)
	if err != nil {
		return 0, err
	}
	switch size {
	case 4:
		return float64(math.Float32frombits(binary.BigEndian.Uint32(payload))), nil
	case 8:
		return math.Float64frombits(binary.BigEndian.Uint64(payload)), nil
	default:
		return 0, errors.New("ebml: bad float size")
	}
}

func allOnes(value uint64, length int) bool {
	bits := uint(length*8 - length)
	return value == (uint64(1)<<bits)-1
}
