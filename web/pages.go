// Package web serves the single page of the locker
package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const faviconTag = `<link rel="icon" href="data:image/svg+xml,<svg xmlns='http://www.w3.org/2000/svg' viewBox='0 0 100 100'><text y='.9em' font-size='90'>🎵</text></svg>">`

// Index renders the page. All state comes from the JSON API.
func Index(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(indexHTML))
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Music Locker</title>
` + faviconTag + `
<style>
  * { margin: 0; padding: 0; box-sizing: border-box; }
  body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif; min-height: 100vh; }
  .hidden { display: none !important; }
  #login { min-height: 100vh; display: flex; align-items: center; justify-content: center; background: linear-gradient(135deg, #0f172a, #581c87, #0f172a); }
  .login-box { background: rgba(255,255,255,0.1); border: 1px solid rgba(255,255,255,0.2); border-radius: 16px; padding: 40px; width: 380px; color: #fff; text-align: center; }
  .logo { width: 64px; height: 64px; border-radius: 50%; background: #a855f7; margin: 0 auto 16px; display: flex; align-items: center; justify-content: center; font-size: 30px; }
  .login-box p { color: #e9d5ff; margin: 8px 0 24px; }
  input[type=password] { width: 100%; padding: 12px; border-radius: 8px; border: 1px solid rgba(255,255,255,0.2); background: rgba(255,255,255,0.1); color: #fff; font-size: 16px; outline: none; }
  .btn { padding: 12px 18px; border: none; border-radius: 8px; background: #9333ea; color: #fff; font-size: 15px; cursor: pointer; }
  .btn:disabled { opacity: 0.6; cursor: default; }
  .btn.outline { background: transparent; border: 1px solid #c4b5fd; color: #6b21a8; }
  .wide { width: 100%; margin-top: 16px; }
  .error { color: #f87171; font-size: 14px; margin-top: 10px; text-align: left; }
  #app { background: linear-gradient(135deg, #faf5ff, #fff, #eff6ff); min-height: 100vh; }
  .container { max-width: 900px; margin: 0 auto; padding: 32px 16px; }
  header { display: flex; justify-content: space-between; align-items: center; margin-bottom: 32px; }
  header h1 { font-size: 24px; color: #111827; }
  header small { color: #4b5563; }
  #drop { border: 2px dashed #d8b4fe; border-radius: 12px; padding: 40px; text-align: center; }
  #drop.over { border-color: #a855f7; background: #faf5ff; }
  #drop h3 { margin: 12px 0 6px; color: #111827; }
  #drop p { color: #6b7280; font-size: 14px; margin-bottom: 16px; }
  .cover { width: 320px; height: 320px; margin: 0 auto; position: relative; border-radius: 8px; border: 4px solid #c084fc; overflow: hidden; background: linear-gradient(135deg, #9333ea, #6b21a8); }
  .cover img { width: 100%; height: 100%; object-fit: cover; }
  .placeholder { height: 100%; display: flex; flex-direction: column; align-items: center; justify-content: center; color: #e9d5ff; }
  .play { position: absolute; right: 16px; bottom: 16px; width: 64px; height: 64px; border-radius: 50%; border: 2px solid #d8b4fe; background: #a855f7; color: #fff; font-size: 24px; cursor: pointer; }
  .card { margin-top: 24px; border-radius: 12px; border: 2px solid #a855f7; background: linear-gradient(90deg, #6b21a8, #7e22ce); color: #fff; padding: 20px; }
  .card-head { display: flex; justify-content: space-between; align-items: center; margin-bottom: 16px; }
  .card-head h3 { max-width: 480px; overflow: hidden; text-overflow: ellipsis; white-space: nowrap; }
  .card-head small { color: #d8b4fe; }
  .icon-btn { background: none; border: none; color: #d8b4fe; font-size: 18px; cursor: pointer; }
  input[type=range] { width: 100%; }
  .times { display: flex; justify-content: space-between; font-size: 12px; color: #d8b4fe; margin: 6px 0 16px; }
  .actions { display: flex; gap: 8px; }
  .actions a { flex: 1; text-align: center; text-decoration: none; }
  .center { text-align: center; margin-top: 24px; }
  footer { margin-top: 48px; text-align: center; color: #6b7280; font-size: 14px; }
</style>
</head>
<body>
<div id="login" class="hidden">
  <div class="login-box">
    <div class="logo">🎵</div>
    <h2>Welcome back!</h2>
    <p>Enter the access code</p>
    <form id="loginForm">
      <input type="password" id="password" placeholder="Password" autocomplete="current-password" required>
      <div id="loginError" class="error hidden"></div>
      <button class="btn wide" type="submit" id="loginBtn">Sign in</button>
    </form>
  </div>
</div>

<div id="app" class="hidden">
  <div class="container">
    <header>
      <div>
        <h1>🎵 Music Collection</h1>
        <small>Upload, listen to and download your MP3s</small>
      </div>
      <button class="btn outline" id="logoutBtn">Sign out</button>
    </header>

    <div id="drop">
      <div style="font-size:32px" id="dropIcon">⬆️</div>
      <h3 id="dropTitle">Upload an MP3 file</h3>
      <p>Drop a file here or use the button below</p>
      <label class="btn outline">Choose file
        <input type="file" id="fileInput" accept="audio/*" class="hidden">
      </label>
    </div>

    <div id="player" class="hidden">
      <div class="cover">
        <img id="coverImg" class="hidden" alt="Album cover">
        <div id="coverPlaceholder" class="placeholder">
          <div style="font-size:64px">🎵</div>
          <strong>Music file</strong>
          <small>No cover found</small>
        </div>
        <button class="play" id="playBtn">▶</button>
      </div>
      <div class="card">
        <div class="card-head">
          <div>
            <h3 id="trackName"></h3>
            <small id="trackSize"></small>
          </div>
          <button class="icon-btn" id="removeBtn" title="Remove">✕</button>
        </div>
        <audio id="audio" preload="metadata"></audio>
        <input type="range" id="seek" min="0" max="100" step="0.1" value="0">
        <div class="times"><span id="elapsed">0:00</span><span id="remaining">0:00</span></div>
        <div class="actions">
          <a class="btn outline" id="downloadLink" style="color:#e9d5ff">💾 Download</a>
          <a class="btn outline hidden" id="exportLink" style="color:#e9d5ff">WAV</a>
        </div>
      </div>
      <div class="center"><button class="btn outline" id="anotherBtn">＋ Upload another file</button></div>
    </div>

    <footer>🎵 Enjoy your music in a safe space</footer>
  </div>
</div>

<script>
const $ = id => document.getElementById(id);
const audio = $('audio');
let uploading = false;

function formatTime(t) {
  if (!isFinite(t) || t < 0) t = 0;
  const m = Math.floor(t / 60), s = Math.floor(t % 60);
  return m + ':' + String(s).padStart(2, '0');
}

async function api(method, path, body) {
  const res = await fetch('/api/v1' + path, { method, body, credentials: 'same-origin' });
  let data = {};
  try { data = await res.json(); } catch (e) {}
  return { status: res.status, data };
}

function showLogin() {
  $('app').classList.add('hidden');
  $('login').classList.remove('hidden');
}

function showUploader() {
  audio.pause();
  audio.removeAttribute('src');
  audio.load();
  $('coverImg').removeAttribute('src');
  $('player').classList.add('hidden');
  $('drop').classList.remove('hidden');
  $('playBtn').textContent = '▶';
  $('seek').value = 0;
}

function showTrack(t) {
  $('drop').classList.add('hidden');
  $('player').classList.remove('hidden');
  $('trackName').textContent = (t.info && t.info.title) ? t.info.title + ' (' + t.name + ')' : t.name;
  $('trackSize').textContent = t.size_mb + ' MB';
  audio.src = t.audio_url;
  $('downloadLink').href = t.download_url;
  $('exportLink').classList.toggle('hidden', !t.export_url);
  if (t.export_url) $('exportLink').href = t.export_url;
  if (t.cover_url) {
    $('coverImg').src = t.cover_url;
    $('coverImg').classList.remove('hidden');
    $('coverPlaceholder').classList.add('hidden');
  } else {
    $('coverImg').classList.add('hidden');
    $('coverPlaceholder').classList.remove('hidden');
  }
}

async function refresh() {
  const { data } = await api('GET', '/session');
  if (!data.authenticated) return showLogin();
  $('login').classList.add('hidden');
  $('app').classList.remove('hidden');
  if (data.track) showTrack(data.track); else showUploader();
}

$('loginForm').addEventListener('submit', async e => {
  e.preventDefault();
  $('loginBtn').disabled = true;
  $('loginBtn').textContent = 'Checking...';
  const form = new FormData();
  form.append('password', $('password').value);
  const { status, data } = await api('POST', '/login', form);
  $('loginBtn').disabled = false;
  $('loginBtn').textContent = 'Sign in';
  if (status === 200) {
    $('loginError').classList.add('hidden');
    $('password').value = '';
    refresh();
  } else {
    $('loginError').textContent = data.message || 'wrong password';
    $('loginError').classList.remove('hidden');
  }
});

$('logoutBtn').addEventListener('click', async () => {
  await api('POST', '/logout');
  showUploader();
  showLogin();
});

async function upload(file) {
  if (!file || !file.type.startsWith('audio/') || uploading) return;
  uploading = true;
  $('dropIcon').textContent = '⏳';
  $('dropTitle').textContent = 'Uploading...';
  const form = new FormData();
  form.append('file', file);
  const { status, data } = await api('POST', '/track', form);
  uploading = false;
  $('dropIcon').textContent = '⬆️';
  $('dropTitle').textContent = 'Upload an MP3 file';
  if (status === 200) { showUploader(); showTrack(data); }
}

$('fileInput').addEventListener('change', e => { upload(e.target.files[0]); e.target.value = ''; });
$('drop').addEventListener('dragover', e => { e.preventDefault(); $('drop').classList.add('over'); });
$('drop').addEventListener('dragleave', () => $('drop').classList.remove('over'));
$('drop').addEventListener('drop', e => {
  e.preventDefault();
  $('drop').classList.remove('over');
  upload(e.dataTransfer.files[0]);
});

async function removeTrack() {
  await api('DELETE', '/track');
  showUploader();
}
$('removeBtn').addEventListener('click', removeTrack);
$('anotherBtn').addEventListener('click', removeTrack);

$('playBtn').addEventListener('click', () => {
  if (audio.paused) audio.play(); else audio.pause();
});
audio.addEventListener('play', () => $('playBtn').textContent = '⏸');
audio.addEventListener('pause', () => $('playBtn').textContent = '▶');
audio.addEventListener('ended', () => $('playBtn').textContent = '▶');
audio.addEventListener('loadedmetadata', () => { $('remaining').textContent = formatTime(audio.duration); });
audio.addEventListener('timeupdate', () => {
  const d = audio.duration || 0;
  $('elapsed').textContent = formatTime(audio.currentTime);
  $('remaining').textContent = formatTime(d - audio.currentTime);
  $('seek').value = d ? (audio.currentTime / d) * 100 : 0;
});
$('seek').addEventListener('input', e => {
  if (audio.duration) audio.currentTime = (parseFloat(e.target.value) / 100) * audio.duration;
});

refresh();
</script>
</body>
</html>
`
