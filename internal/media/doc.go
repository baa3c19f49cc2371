// Package media resolves remote sources and downloads the audio and video
// artifacts a job needs, shelling out to yt-dlp and ffmpeg. It owns the
// downloading stage of the workflow.
package media
