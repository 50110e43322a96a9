package webserver

import "html/template"

var indexTemplate = template.Must(template.New("index").Parse(indexHTML))

// pageData fills indexHTML.
type pageData struct {
	Title          string
	StreamURL      string
	StreamRotation int
	Latitude       float64
	Longitude      float64
	MapKey         string
	MapZoom        int
	StatusInterval int64 // milliseconds
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>{{.Title}}</title>
<meta name="viewport" content="width=device-width, initial-scale=1.0, maximum-scale=1.0, user-scalable=no">
<link rel="stylesheet" href="https://atlas.microsoft.com/sdk/javascript/mapcontrol/2/atlas.min.css">
<style>
body { font-family: sans-serif; text-align: center; }
button { touch-action: manipulation; color: black; width: 90px; height: 80px; background-color: lightgrey; }
button.auto { background-color: red; }
button.auto.on { background-color: limegreen; }
#stream { width: 300px; transform: rotate({{.StreamRotation}}deg); }
#map { width: 100%; height: 400px; }
</style>
<script>
var xhttp = new XMLHttpRequest();
function getsend(arg) {
  xhttp.open('GET', arg + '?' + new Date().getTime(), true);
  xhttp.send();
}
</script>
</head>
<body>
<h1>{{.Title}}</h1>
<p><img id="stream" src="{{.StreamURL}}" alt="camera"></p>
<p>
<button onmousedown="getsend('go')" onmouseup="getsend('stop')" ontouchstart="getsend('go')" ontouchend="getsend('stop')"><b>Forward</b></button>
</p>
<p>
<button onmousedown="getsend('left')" onmouseup="getsend('stop')" ontouchstart="getsend('left')" ontouchend="getsend('stop')"><b>Left</b></button>&nbsp;
<button id="auto" class="auto" onclick="getsend('/tongleautomode')"><b>Auto Mode</b></button>
<button onmousedown="getsend('right')" onmouseup="getsend('stop')" ontouchstart="getsend('right')" ontouchend="getsend('stop')"><b>Right</b></button>
</p>
<p>
<button onmousedown="getsend('back')" onmouseup="getsend('stop')" ontouchstart="getsend('back')" ontouchend="getsend('stop')"><b>Back</b></button>
</p>
<p><b>Latitude:</b> <span id="latitude">{{printf "%.6f" .Latitude}}</span> <b>Longitude:</b> <span id="longitude">{{printf "%.6f" .Longitude}}</span></p>
<div id="map"></div>
<script src="https://atlas.microsoft.com/sdk/javascript/mapcontrol/2/atlas.min.js"></script>
<script>
var map = new atlas.Map('map', {
  center: [{{.Longitude}}, {{.Latitude}}],
  zoom: {{.MapZoom}},
  authOptions: {
    authType: 'subscriptionKey',
    subscriptionKey: {{.MapKey}}
  }
});
map.events.add('ready', function () {
  map.markers.add(new atlas.HtmlMarker({ position: [{{.Longitude}}, {{.Latitude}}] }));
});

function showPosition(lat, lon) {
  document.getElementById('latitude').innerText = lat.toFixed(6);
  document.getElementById('longitude').innerText = lon.toFixed(6);
  map.setCamera({ center: [lon, lat] });
  map.markers.clear();
  map.markers.add(new atlas.HtmlMarker({ position: [lon, lat] }));
}

function updateLocation() {
  var xhr = new XMLHttpRequest();
  xhr.open('GET', '/status', true);
  xhr.onreadystatechange = function () {
    if (xhr.readyState == 4 && xhr.status == 200) {
      var status = JSON.parse(xhr.responseText);
      showPosition(status.latitude, status.longitude);
    }
  };
  xhr.send();
}

var poller = null;
function startPolling() {
  if (poller === null) {
    poller = setInterval(updateLocation, {{.StatusInterval}});
  }
}
function stopPolling() {
  if (poller !== null) {
    clearInterval(poller);
    poller = null;
  }
}

// Prefer pushed telemetry; fall back to polling while the socket is down.
function connectTelemetry() {
  if (!('WebSocket' in window)) {
    startPolling();
    return;
  }
  var scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
  var ws = new WebSocket(scheme + location.host + '/ws/telemetry');
  ws.onopen = stopPolling;
  ws.onmessage = function (ev) {
    var t = JSON.parse(ev.data);
    showPosition(t.latitude, t.longitude);
    document.getElementById('auto').classList.toggle('on', t.auto_mode);
  };
  ws.onclose = function () {
    startPolling();
    setTimeout(connectTelemetry, 5000);
  };
}

startPolling();
connectTelemetry();
</script>
</body>
</html>
`
