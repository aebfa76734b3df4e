package standardize

import "fmt"

// buildCopyArgs constructs the phase A (stream copy) ffmpeg argument slice.
//
// Without a selection every stream is mapped verbatim. With one, video and
// subtitles are mapped followed by exactly the selected audio streams in
// reply order; default disposition is cleared on all audio and re-stamped on
// the first mapped stream.
func buildCopyArgs(inPath, outPath, audioTitle string, selection []int) []string {
	args := []string{"-hide_banner", "-nostdin", "-y", "-i", inPath}

	if len(selection) > 0 {
		args = append(args, "-disposition:a", "0")
		args = append(args, "-map", "0:v", "-map", "0:s?")
		for _, sourceIndex := range selection {
			args = append(args, "-map", fmt.Sprintf("0:%d", sourceIndex))
		}
		args = append(args, "-disposition:a:0", "default")
	} else {
		args = append(args, "-map", "0")
	}

	args = append(args,
		"-c", "copy",
		"-metadata", "handler_name=",
		"-metadata:s:a", "title="+audioTitle,
		"-movflags", "+faststart",
		outPath,
	)
	return args
}

// buildEncodeArgs constructs the phase B (re-encode fallback) argument slice.
// Video is re-encoded with a fixed quality preset while audio is still
// stream-copied.
func buildEncodeArgs(inPath, outPath, audioTitle string) []string {
	return []string{
		"-hide_banner", "-nostdin", "-y",
		"-i", inPath,
		"-map", "0",
		"-c:v", "libx264", "-preset", "fast", "-crf", "23",
		"-c:a", "copy",
		"-metadata", "handler_name=",
		"-metadata:s:a", "title=" + audioTitle,
		outPath,
	}
}
