// Package extract performs the local, model-free part of document analysis:
// content type detection, PDF page counts, spreadsheet tables and HTML text.
// Everything it produces is handed to the multimodal analyzer as extra
// context.
package extract
