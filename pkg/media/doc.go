// Package media describes media attachments: category, MIME type, size
// limits, content hashes and the per-file media key. A Descriptor travels
// inside a "media" node; uploading and downloading the bytes themselves is
// left to the caller.
package media
